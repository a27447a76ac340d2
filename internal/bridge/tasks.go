package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Task names understood by the transports.
const (
	TaskLog        = "ai:log"
	TaskGet        = "ai:get"
	TaskSave       = "ai:save"
	TaskCheckLink  = "ai:checkLink"
	TaskCheckLinks = "ai:checkLinks"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrBadArgument = errors.New("bad task argument")
)

// Tasks lists every task name.
func Tasks() []string {
	return []string{TaskLog, TaskGet, TaskSave, TaskCheckLink, TaskCheckLinks}
}

// Dispatch runs a named task against ch. arg is the raw JSON argument. The
// returned value is what the transport encodes back to the caller; ai:log
// answers nil. Only an unknown task or an unusable link-check argument is an
// error.
func Dispatch(ctx context.Context, ch Channel, task string, arg []byte) (any, error) {
	switch task {
	case TaskLog:
		ch.Log(ctx, arg)
		return nil, nil
	case TaskGet:
		return ch.Get(ctx), nil
	case TaskSave:
		return ch.Save(ctx), nil
	case TaskCheckLink:
		url, err := ParseURLArg(arg)
		if err != nil {
			return nil, err
		}
		return ch.CheckLink(ctx, url), nil
	case TaskCheckLinks:
		urls, err := ParseURLListArg(arg)
		if err != nil {
			return nil, err
		}
		return ch.CheckLinks(ctx, urls), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
}

// ParseURLArg accepts a JSON string or an object with "url" or "href".
func ParseURLArg(arg []byte) (string, error) {
	if !gjson.ValidBytes(arg) {
		return "", fmt.Errorf("%w: expected a URL", ErrBadArgument)
	}
	v := gjson.ParseBytes(arg)
	switch {
	case v.Type == gjson.String:
		return v.String(), nil
	case v.IsObject():
		for _, key := range []string{"url", "href"} {
			if u := v.Get(key); u.Type == gjson.String {
				return u.String(), nil
			}
		}
	}
	return "", fmt.Errorf("%w: expected a URL", ErrBadArgument)
}

// ParseURLListArg accepts a JSON array of strings or an object with "urls".
// Non-string entries are kept as empty URLs so results stay index aligned.
func ParseURLListArg(arg []byte) ([]string, error) {
	if !gjson.ValidBytes(arg) {
		return nil, fmt.Errorf("%w: expected a list of URLs", ErrBadArgument)
	}
	v := gjson.ParseBytes(arg)
	if v.IsObject() {
		v = v.Get("urls")
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: expected a list of URLs", ErrBadArgument)
	}
	items := v.Array()
	urls := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type == gjson.String {
			urls = append(urls, item.String())
		} else {
			urls = append(urls, "")
		}
	}
	return urls, nil
}
