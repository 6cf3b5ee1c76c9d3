// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/http"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/uitsmijter/uitsmijter/pkg/config"
)

// Runtime evaluates tenant provider scripts. Every evaluation runs in a
// fresh interpreter state, so globals never leak between tenants or between
// two evaluations of the same tenant.
type Runtime struct {
	timeout       time.Duration
	fetchTimeout  time.Duration
	fetchMaxBytes int64
	httpClient    *http.Client
}

// New creates a runtime with the configured evaluation and fetch bounds.
func New(cfg *config.Config) *Runtime {
	return &Runtime{
		timeout:       cfg.ProviderTimeout,
		fetchTimeout:  cfg.ProviderFetchTimeout,
		fetchMaxBytes: cfg.ProviderFetchMaxBytes,
		httpClient:    &http.Client{},
	}
}

// Login evaluates the tenant's UserLoginProvider with the given credentials.
// Script errors, timeouts, and a missing provider class surface as typed
// errors; callers translate them to "wrong credentials".
func (r *Runtime) Login(ctx context.Context, tenantName, source string, creds Credentials) (*LoginResult, error) {
	result := &LoginResult{}
	err := r.evaluate(ctx, tenantName, source, LoginProviderName,
		func(L *lua.LState) *lua.LTable {
			input := L.NewTable()
			L.SetField(input, "username", lua.LString(creds.Username))
			L.SetField(input, "password", lua.LString(creds.Password))
			return input
		},
		func(L *lua.LState, instance *lua.LTable, committed any) error {
			result.Committed = committed

			canLogin, err := property(L, instance, "canLogin")
			if err != nil {
				return err
			}
			result.CanLogin = lua.LVAsBool(canLogin)
			if !result.CanLogin {
				return nil
			}

			profile, err := property(L, instance, "userProfile")
			if err != nil {
				return err
			}
			result.Profile = luaToGo(profile)

			role, err := property(L, instance, "role")
			if err != nil {
				return err
			}
			if role != lua.LNil {
				result.Role = lua.LVAsString(role)
			}

			scopes, err := property(L, instance, "scopes")
			if err != nil {
				return err
			}
			result.Scopes = toStringSlice(luaToGo(scopes))
			return nil
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Validate evaluates the tenant's UserValidationProvider for a username.
// Callers translate failures to "invalidate".
func (r *Runtime) Validate(ctx context.Context, tenantName, source, username string) (*ValidationResult, error) {
	result := &ValidationResult{}
	err := r.evaluate(ctx, tenantName, source, ValidationProviderName,
		func(L *lua.LState) *lua.LTable {
			input := L.NewTable()
			L.SetField(input, "username", lua.LString(username))
			return input
		},
		func(L *lua.LState, instance *lua.LTable, committed any) error {
			result.Committed = committed

			isValid, err := property(L, instance, "isValid")
			if err != nil {
				return err
			}
			result.IsValid = lua.LVAsBool(isValid)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// evaluate runs one isolated evaluation: load the source, instantiate the
// named provider class with the built input, and hand the instance to
// collect. All Lua values must be converted before evaluate returns, the
// interpreter state dies with it.
func (r *Runtime) evaluate(
	ctx context.Context,
	tenantName, source, className string,
	buildInput func(*lua.LState) *lua.LTable,
	collect func(L *lua.LState, instance *lua.LTable, committed any) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	L := lua.NewState(lua.Options{
		CallStackSize:       64,
		RegistrySize:        1024 * 4,
		RegistryMaxSize:     1024 * 64,
		SkipOpenLibs:        false,
		IncludeGoStackTrace: false,
	})
	defer L.Close()
	L.SetContext(ctx)

	commit := &commitBox{}
	r.installHostAPI(L, tenantName, commit)

	if err := L.DoString(source); err != nil {
		return r.classify(ctx, err)
	}

	class := L.GetGlobal(className)
	if class == lua.LNil {
		return failure(ErrMissingProvider, errClassName(className))
	}

	instance, err := instantiate(L, class, buildInput(L))
	if err != nil {
		return r.classify(ctx, err)
	}

	if err := collect(L, instance, commit.value()); err != nil {
		return r.classify(ctx, err)
	}
	return nil
}

func (r *Runtime) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return failure(ErrTimeout, err)
	}
	return failure(ErrScript, err)
}

type errClassName string

func (e errClassName) Error() string { return string(e) }

// instantiate builds the provider instance. A class given as a function is
// called with the input; a class given as a table is constructed through its
// "new" field. The result must be a table.
func instantiate(L *lua.LState, class lua.LValue, input *lua.LTable) (*lua.LTable, error) {
	var constructor lua.LValue
	var args []lua.LValue

	switch c := class.(type) {
	case *lua.LFunction:
		constructor = c
		args = []lua.LValue{input}
	case *lua.LTable:
		constructor = L.GetField(c, "new")
		if constructor == lua.LNil {
			return nil, errClassName("provider table has no constructor 'new'")
		}
		args = []lua.LValue{c, input}
	default:
		return nil, errClassName("provider global is neither a function nor a table")
	}

	if err := L.CallByParam(lua.P{Fn: constructor, NRet: 1, Protect: true}, args...); err != nil {
		return nil, err
	}
	ret := L.Get(-1)
	L.Pop(1)

	instance, ok := ret.(*lua.LTable)
	if !ok {
		return nil, errClassName("provider constructor did not return a table")
	}
	return instance, nil
}

// property reads a named field from the instance. A function-valued field is
// treated as a getter and called with the instance.
func property(L *lua.LState, instance *lua.LTable, name string) (lua.LValue, error) {
	value := L.GetField(instance, name)
	fn, ok := value.(*lua.LFunction)
	if !ok {
		return value, nil
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, instance); err != nil {
		return lua.LNil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
