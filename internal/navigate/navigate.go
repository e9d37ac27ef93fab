// Package navigate opens record detail pages in the record store.
package navigate

import (
	"context"
	"errors"
	"net/url"

	appLog "consultboard/internal/log"
)

// ActionView is the only action the board issues.
const ActionView = "view"

// Target identifies a record page.
type Target struct {
	RecordID      string
	ObjectAPIName string
	Action        string
}

// Navigator performs a navigation to a record page.
type Navigator interface {
	Navigate(ctx context.Context, t Target) error
}

// PageURL builds the record page URL for t under the store's web host, e.g.
// https://acme.lightning.force.com/lightning/r/Consult_Request__c/a0X.../view.
func PageURL(baseURL string, t Target) (string, error) {
	if baseURL == "" {
		return "", errors.New("navigate: record page base URL is empty")
	}
	if t.RecordID == "" || t.ObjectAPIName == "" {
		return "", errors.New("navigate: record id and object are required")
	}
	action := t.Action
	if action == "" {
		action = ActionView
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return base.JoinPath("lightning", "r", t.ObjectAPIName, t.RecordID, action).String(), nil
}

type openerKey struct{}

// WithOpener attaches the function that performs the actual navigation for
// the current request, e.g. an HTTP redirect.
func WithOpener(ctx context.Context, open func(pageURL string) error) context.Context {
	return context.WithValue(ctx, openerKey{}, open)
}

// OpenFromContext calls the opener attached by WithOpener.
func OpenFromContext(ctx context.Context, pageURL string) error {
	open, ok := ctx.Value(openerKey{}).(func(string) error)
	if !ok || open == nil {
		return errors.New("navigate: no opener in context")
	}
	return open(pageURL)
}

// Redirector resolves targets to record page URLs and hands them to Open,
// which typically issues an HTTP redirect for the current request.
type Redirector struct {
	BaseURL string
	Open    func(ctx context.Context, pageURL string) error
}

func (r Redirector) Navigate(ctx context.Context, t Target) error {
	u, err := PageURL(r.BaseURL, t)
	if err != nil {
		return err
	}
	appLog.Info("navigate to record", "record_id", t.RecordID, "object", t.ObjectAPIName, "action", t.Action)
	if r.Open == nil {
		return errors.New("navigate: no opener configured")
	}
	return r.Open(ctx, u)
}
