package wstest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shieldkit/webshield/internal/errcoll"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/interceptor"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/ws"
)

// Interface Mocks
//
// Keep entities within a module/package in alphabetic order.

// Module WebShield

// type check
var _ ws.Refresher = (*Refresher)(nil)

// Refresher is a [ws.Refresher] for tests.
type Refresher struct {
	OnRefresh func(ctx context.Context) (err error)
}

// Refresh implements the [ws.Refresher] interface for *Refresher.
func (r *Refresher) Refresh(ctx context.Context) (err error) {
	return r.OnRefresh(ctx)
}

// Package errcoll

// type check
var _ errcoll.Interface = (*ErrorCollector)(nil)

// ErrorCollector is an [errcoll.Interface] for tests.
type ErrorCollector struct {
	OnCollect func(ctx context.Context, err error)
}

// Collect implements the [errcoll.Interface] interface for *ErrorCollector.
func (c *ErrorCollector) Collect(ctx context.Context, err error) {
	c.OnCollect(ctx, err)
}

// NewErrorCollector returns a new *ErrorCollector all methods of which panic.
func NewErrorCollector() (c *ErrorCollector) {
	return &ErrorCollector{
		OnCollect: func(_ context.Context, err error) {
			panic(fmt.Errorf("unexpected call to ErrorCollector.Collect(%v)", err))
		},
	}
}

// Package filter

// type check
var _ filter.Classifier = (*Classifier)(nil)

// Classifier is a [filter.Classifier] for tests.
type Classifier struct {
	OnIsBlocked func(ctx context.Context, req *filter.Request) (blocked bool)
}

// IsBlocked implements the [filter.Classifier] interface for *Classifier.
func (c *Classifier) IsBlocked(ctx context.Context, req *filter.Request) (blocked bool) {
	return c.OnIsBlocked(ctx, req)
}

// type check
var _ filter.Rewriter = (*Rewriter)(nil)

// Rewriter is a [filter.Rewriter] for tests.
type Rewriter struct {
	OnRewrite func(ctx context.Context, u *url.URL) (res *filter.RewriteResult)
}

// Rewrite implements the [filter.Rewriter] interface for *Rewriter.
func (r *Rewriter) Rewrite(ctx context.Context, u *url.URL) (res *filter.RewriteResult) {
	return r.OnRewrite(ctx, u)
}

// Package interceptor

// type check
var _ interceptor.Navigator = (*Navigator)(nil)

// Navigator is an [interceptor.Navigator] for tests.
type Navigator struct {
	OnNavigate func(ctx context.Context, pageID string, u *url.URL)
}

// Navigate implements the [interceptor.Navigator] interface for *Navigator.
func (n *Navigator) Navigate(ctx context.Context, pageID string, u *url.URL) {
	n.OnNavigate(ctx, pageID, u)
}

// Package shield

// type check
var _ shield.Interface = (*ShieldStore)(nil)

// ShieldStore is a [shield.Interface] for tests.
type ShieldStore struct {
	OnGet    func(host string) (c shield.Configuration)
	OnSet    func(ctx context.Context, host string, c shield.Configuration)
	OnDelete func(ctx context.Context, host string)
	OnReset  func(ctx context.Context)
}

// Get implements the [shield.Interface] interface for *ShieldStore.
func (s *ShieldStore) Get(host string) (c shield.Configuration) {
	return s.OnGet(host)
}

// Set implements the [shield.Interface] interface for *ShieldStore.
func (s *ShieldStore) Set(ctx context.Context, host string, c shield.Configuration) {
	s.OnSet(ctx, host, c)
}

// Delete implements the [shield.Interface] interface for *ShieldStore.
func (s *ShieldStore) Delete(ctx context.Context, host string) {
	s.OnDelete(ctx, host)
}

// Reset implements the [shield.Interface] interface for *ShieldStore.
func (s *ShieldStore) Reset(ctx context.Context) {
	s.OnReset(ctx)
}

// type check
var _ shield.Storage = (*ShieldStorage)(nil)

// ShieldStorage is a [shield.Storage] for tests.
type ShieldStorage struct {
	OnLoad   func(ctx context.Context) (confs map[string]shield.Configuration, err error)
	OnPut    func(ctx context.Context, domain string, c shield.Configuration) (err error)
	OnRemove func(ctx context.Context, domain string) (err error)
	OnClear  func(ctx context.Context) (err error)
}

// Load implements the [shield.Storage] interface for *ShieldStorage.
func (s *ShieldStorage) Load(ctx context.Context) (confs map[string]shield.Configuration, err error) {
	return s.OnLoad(ctx)
}

// Put implements the [shield.Storage] interface for *ShieldStorage.
func (s *ShieldStorage) Put(ctx context.Context, domain string, c shield.Configuration) (err error) {
	return s.OnPut(ctx, domain, c)
}

// Remove implements the [shield.Storage] interface for *ShieldStorage.
func (s *ShieldStorage) Remove(ctx context.Context, domain string) (err error) {
	return s.OnRemove(ctx, domain)
}

// Clear implements the [shield.Storage] interface for *ShieldStorage.
func (s *ShieldStorage) Clear(ctx context.Context) (err error) {
	return s.OnClear(ctx)
}
