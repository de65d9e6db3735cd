// Package busmock holds test doubles for the bus's external collaborators,
// grounded on the teacher module's testify/mock-based mocks
// (modules/reverseproxy/mocks_for_test.go): an embedded mock.Mock plus one
// method per interface method, asserted against with mock.AssertExpectations.
package busmock

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/mock"
)

// Observer mocks eventbus.Observer.
type Observer struct {
	mock.Mock
}

// Notify records the call so it can be matched against On(...) expectations.
func (o *Observer) Notify(ctx context.Context, event cloudevents.Event) {
	o.Called(ctx, event)
}
