package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// Doer dispatches a request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps a Doer with a cross-cutting behaviour.
type Middleware func(next Doer) Doer

// Chain composes middlewares around d. The first middleware is the
// outermost, so it sees the request first and the response last.
func Chain(d Doer, middlewares ...Middleware) Doer {
	for i := len(middlewares) - 1; i >= 0; i-- {
		d = middlewares[i](d)
	}
	return d
}

// Invalidator clears the session once the backend rejects its credential.
type Invalidator interface {
	Logout() error
}

// InvalidationFunc is notified after a 401 cleared the session.
type InvalidationFunc func(ctx context.Context, err *HTTPError)

// InjectCredentials sets "Authorization: Bearer <token>" when tokens yields
// a token. Requests go out unmodified when there is none, so anonymous calls
// such as the login itself still work. It never fails a request.
func InjectCredentials(tokens oauth2.TokenSource) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			tok, err := tokens.Token()
			if err == nil && tok.Valid() {
				req = req.Clone(req.Context())
				tok.SetAuthHeader(req)
			}
			return next.Do(req)
		})
	}
}

// RequestID stamps an X-Request-ID header unless the caller set one.
func RequestID() Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("X-Request-ID") == "" {
				req = req.Clone(req.Context())
				req.Header.Set("X-Request-ID", uuid.NewString())
			}
			return next.Do(req)
		})
	}
}

// Observe records a span and request metrics for every call and propagates
// the trace context to the backend.
func Observe() Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			started := time.Now()
			m := telemetry.GetMetrics()

			ctx, span := telemetry.Tracer().Start(req.Context(), "HTTP "+req.Method,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("url.path", req.URL.Path),
				))
			defer span.End()

			req = req.Clone(ctx)
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

			resp, err := next.Do(req)

			attrs := metric.WithAttributes(attribute.String("method", req.Method))
			m.HTTPRequestsTotal.Add(ctx, 1, attrs)
			m.HTTPRequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

			if err != nil {
				m.HTTPRequestErrorsTotal.Add(ctx, 1, attrs)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}

			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
			return resp, nil
		})
	}
}

// ClassifyFailures turns transport errors into NetworkError and non 2xx
// responses into HTTPError. A 401 from any endpoint logs the session out
// and then notifies every listener, before the error is returned to the
// caller. Each 401 triggers exactly one logout and one notification.
func ClassifyFailures(sessions Invalidator, notify InvalidationFunc) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.Do(req)
			if err != nil {
				return nil, &NetworkError{Err: err}
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}

			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()

			httpErr := &HTTPError{
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: resp.StatusCode,
				Body:       body,
			}

			if resp.StatusCode == http.StatusUnauthorized {
				log.Warn().
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Msg("backend rejected credential, clearing session")

				if err := sessions.Logout(); err != nil {
					log.Error().Err(err).Msg("failed to clear session")
				}

				telemetry.GetMetrics().SessionInvalidatedTotal.Add(req.Context(), 1)

				if notify != nil {
					notify(req.Context(), httpErr)
				}
			}

			return nil, httpErr
		})
	}
}

// dispatch sends the request with the configured http.Client.
func dispatch(hc *http.Client) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
		}
		return resp, nil
	})
}
