// Package builtins provides a small example function library so
// `workflowctl run` has something to execute out of the box.
package builtins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"workflowctl/internal/registry"
	"workflowctl/internal/value"
)

// Register installs every builtin function into r.
func Register(r *registry.Registry) {
	r.Register("sleep", sleepFn)
	r.Register("echo", echoFn)
	r.Register("fail", failFn)
	r.Register("sum", sumFn)
	r.Register("http.get", httpGetFn)
}

func sleepFn(ctx context.Context, args []value.Value) (value.Value, error) {
	ms := int64(100)
	if len(args) > 0 && args[0].Kind == value.KindInt {
		ms = args[0].Int
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return value.Null(), nil
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}

func echoFn(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Null(), nil
	}
	return args[0], nil
}

func failFn(_ context.Context, args []value.Value) (value.Value, error) {
	msg := "fail"
	if len(args) > 0 && args[0].Kind == value.KindString {
		msg = args[0].String
	}
	return value.Value{}, fmt.Errorf("%s", msg)
}

func sumFn(_ context.Context, args []value.Value) (value.Value, error) {
	var total int64
	var totalF float64
	isFloat := false
	for _, a := range args {
		switch a.Kind {
		case value.KindInt:
			total += a.Int
		case value.KindFloat:
			isFloat = true
			totalF += a.Float
		default:
			return value.Value{}, fmt.Errorf("sum: argument of kind %d is not numeric", a.Kind)
		}
	}
	if isFloat {
		return value.Float(totalF + float64(total)), nil
	}
	return value.Int(total), nil
}

func httpGetFn(ctx context.Context, args []value.Value) (value.Value, error) {
	if len(args) == 0 || args[0].Kind != value.KindString {
		return value.Value{}, fmt.Errorf("http.get: expected a single string URL argument")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args[0].String, nil)
	if err != nil {
		return value.Value{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return value.Value{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return value.Value{}, err
	}
	return value.Map(map[string]value.Value{
		"status": value.Int(int64(resp.StatusCode)),
		"body":   value.String(string(body)),
	}), nil
}
