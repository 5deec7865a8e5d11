package callback

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"pkgbind/internal/value"
)

// WebhookInvoker posts the arguments as a JSON array to
// <BaseURL>/<handler> and decodes the JSON response body as the result.
type WebhookInvoker struct {
	BaseURL string
	Timeout time.Duration
	client  *fasthttp.Client
}

func NewWebhookInvoker(baseURL string) *WebhookInvoker {
	return &WebhookInvoker{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Timeout: 30 * time.Second,
		client: &fasthttp.Client{
			Name:                "pkgbind",
			MaxIdleConnDuration: time.Minute,
		},
	}
}

func (w *WebhookInvoker) Invoke(ctx context.Context, handler string, args []value.Value) (value.Value, error) {
	body, err := value.List(args...).MarshalJSON()
	if err != nil {
		return value.Nil(), errors.Wrap(err, "encode callback arguments")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.BaseURL + "/" + handler)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := w.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := w.client.DoTimeout(req, resp, timeout); err != nil {
		return value.Nil(), errors.Wrapf(err, "callback %s", handler)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return value.Nil(), errors.Errorf("callback %s: status %d", handler, resp.StatusCode())
	}

	if len(resp.Body()) == 0 {
		return value.Nil(), nil
	}
	var result value.Value
	if err := result.UnmarshalJSON(resp.Body()); err != nil {
		return value.Nil(), errors.Wrapf(err, "decode callback %s result", handler)
	}
	return result, nil
}
