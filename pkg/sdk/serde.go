// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"encoding/json"

	"durable-sdk/pkg/errs"
)

// The engine is payload-agnostic; these helpers layer JSON typing on top of
// the byte-level Context for the common case. Encoding failures are returned
// as ordinary (retryable) errors. A state value (GetAs) or recorded
// side-effect value (SideEffectAs) that does not decode is a terminal
// failure; a call response (CallAs) or awaited value (AwaitAs) that does not
// decode is returned as an ordinary (retryable) error. The helpers do not
// distinguish replay from processing.

// GetAs reads and JSON-decodes a state key.
func GetAs[T any](ctx *Context, key string) (v T, ok bool, err error) {
	raw, ok, err := ctx.Get(key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, errs.NewTerminalError(errs.CodeInternal, "state key %q no longer deserializes: %v", key, err)
	}
	return v, true, nil
}

// SetAs JSON-encodes and writes a state key.
func SetAs[T any](ctx *Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errs.Wrapf(err, "serialize state key %q", key)
	}
	return ctx.Set(key, raw)
}

// CallAs invokes service/method with a JSON request and awaits a JSON
// response.
func CallAs[Req, Res any](ctx *Context, service, method string, request Req) (res Res, err error) {
	raw, err := json.Marshal(request)
	if err != nil {
		return res, errs.Wrapf(err, "serialize request for %s/%s", service, method)
	}
	f, err := ctx.Call(service, method, raw)
	if err != nil {
		return res, err
	}
	out, err := f.Await()
	if err != nil {
		return res, err
	}
	if len(out) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(out, &res); err != nil {
		return res, errs.Wrapf(err, "deserialize response from %s/%s", service, method)
	}
	return res, nil
}

// SideEffectAs journals a typed side-effect value.
func SideEffectAs[T any](ctx *Context, fn func() (T, error)) (v T, err error) {
	raw, err := ctx.SideEffect(func() ([]byte, error) {
		out, err := fn()
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})
	if err != nil {
		return v, err
	}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errs.NewTerminalError(errs.CodeInternal, "recorded side effect no longer deserializes: %v", err)
	}
	return v, nil
}

// AwaitAs awaits a future and JSON-decodes its value.
func AwaitAs[T any](f Future) (v T, err error) {
	raw, err := f.Await()
	if err != nil {
		return v, err
	}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errs.Wrap(err, "deserialize awaited value")
	}
	return v, nil
}
