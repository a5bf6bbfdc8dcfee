package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/http/perf"
	"hear/internal/adapters/storage/clientstore"
	"hear/internal/domain/identity"
)

// Instrument wraps every client built by next so each call opens a
// "backend.<table>.<op>" or "backend.auth.<op>" span and, when collector is
// non-nil, records a perf entry.
func Instrument(next backend.Factory, collector *perf.Collector) backend.Factory {
	return func(store clientstore.Storage) backend.Client {
		c := next(store)
		o := &observer{collector: collector}
		return &tracedClient{next: c, obs: o, auth: &tracedAuth{next: c.Auth(), obs: o}}
	}
}

type observer struct {
	collector *perf.Collector
}

// observe runs fn inside a span named label.
func (o *observer) observe(ctx context.Context, label string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) {
	start := time.Now()
	ctx, span := StartSpan(ctx, label, attrs...)
	err := fn(ctx)
	if err != nil {
		span.SetAttributes(attribute.String("backend.error_category", backend.Classify(err).String()))
	}
	End(span, err)

	if o.collector != nil {
		o.collector.Record(perf.Entry{
			Kind:       perf.KindBackend,
			Path:       label,
			DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
			Failed:     err != nil,
			Timestamp:  start,
		})
	}
}

type tracedClient struct {
	next backend.Client
	obs  *observer
	auth *tracedAuth
}

func (c *tracedClient) Auth() backend.Auth { return c.auth }

func (c *tracedClient) From(table string) backend.Table {
	return &tracedTable{next: c.next.From(table), obs: c.obs, name: table}
}

type tracedTable struct {
	next backend.Table
	obs  *observer
	name string
}

func (t *tracedTable) label(op string) string { return "backend." + t.name + "." + op }

func (t *tracedTable) Select(ctx context.Context, q backend.Query) (rows []backend.Row, err error) {
	t.obs.observe(ctx, t.label("select"), func(ctx context.Context) error {
		rows, err = t.next.Select(ctx, q)
		return err
	}, attribute.Bool("backend.single", q.Single))
	return rows, err
}

func (t *tracedTable) Count(ctx context.Context) (n int, err error) {
	t.obs.observe(ctx, t.label("count"), func(ctx context.Context) error {
		n, err = t.next.Count(ctx)
		return err
	})
	return n, err
}

func (t *tracedTable) Insert(ctx context.Context, rows []backend.Row) (out []backend.Row, err error) {
	t.obs.observe(ctx, t.label("insert"), func(ctx context.Context) error {
		out, err = t.next.Insert(ctx, rows)
		return err
	}, attribute.Int("backend.rows", len(rows)))
	return out, err
}

func (t *tracedTable) Upsert(ctx context.Context, row backend.Row) (out backend.Row, err error) {
	t.obs.observe(ctx, t.label("upsert"), func(ctx context.Context) error {
		out, err = t.next.Upsert(ctx, row)
		return err
	})
	return out, err
}

type tracedAuth struct {
	next backend.Auth
	obs  *observer
}

func (a *tracedAuth) GetSession(ctx context.Context) (sess *backend.Session, err error) {
	a.obs.observe(ctx, "backend.auth.get_session", func(ctx context.Context) error {
		sess, err = a.next.GetSession(ctx)
		return err
	})
	return sess, err
}

func (a *tracedAuth) SignInWithPassword(ctx context.Context, email, password string) (sess *backend.Session, err error) {
	a.obs.observe(ctx, "backend.auth.sign_in", func(ctx context.Context) error {
		sess, err = a.next.SignInWithPassword(ctx, email, password)
		return err
	})
	return sess, err
}

func (a *tracedAuth) SignUp(ctx context.Context, email, password string, meta identity.Metadata) (sess *backend.Session, err error) {
	a.obs.observe(ctx, "backend.auth.sign_up", func(ctx context.Context) error {
		sess, err = a.next.SignUp(ctx, email, password, meta)
		return err
	})
	return sess, err
}

func (a *tracedAuth) SignOut(ctx context.Context) (err error) {
	a.obs.observe(ctx, "backend.auth.sign_out", func(ctx context.Context) error {
		err = a.next.SignOut(ctx)
		return err
	})
	return err
}

func (a *tracedAuth) OnAuthStateChange(fn backend.AuthListener) func() {
	return a.next.OnAuthStateChange(fn)
}
