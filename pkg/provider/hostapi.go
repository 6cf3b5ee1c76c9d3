// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"crypto/md5" //nolint:gosec // scripts use md5 for legacy backend lookups, not for security
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// commitBox collects the one-shot commit(...) value of an evaluation. The
// first call wins; later calls are ignored.
type commitBox struct {
	mu        sync.Mutex
	committed bool
	val       any
}

func (c *commitBox) set(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return
	}
	c.committed = true
	c.val = v
}

func (c *commitBox) value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

// installHostAPI registers the functions scripts may call: say, console.log,
// console.error, md5, sha256, commit, and fetch.
func (r *Runtime) installHostAPI(L *lua.LState, tenantName string, commit *commitBox) {
	say := L.NewFunction(func(L *lua.LState) int {
		logger.Infow(scriptMessage(L), "tenant", tenantName, "source", "provider")
		return 0
	})
	L.SetGlobal("say", say)

	console := L.NewTable()
	L.SetField(console, "log", say)
	L.SetField(console, "error", L.NewFunction(func(L *lua.LState) int {
		logger.Errorw(scriptMessage(L), "tenant", tenantName, "source", "provider")
		return 0
	}))
	L.SetGlobal("console", console)

	L.SetGlobal("md5", L.NewFunction(func(L *lua.LState) int {
		sum := md5.Sum([]byte(L.CheckString(1))) //nolint:gosec // see import note
		L.Push(lua.LString(hex.EncodeToString(sum[:])))
		return 1
	}))

	L.SetGlobal("sha256", L.NewFunction(func(L *lua.LState) int {
		sum := sha256.Sum256([]byte(L.CheckString(1)))
		L.Push(lua.LString(hex.EncodeToString(sum[:])))
		return 1
	}))

	L.SetGlobal("commit", L.NewFunction(func(L *lua.LState) int {
		// commit(value) or commit(ok, claims); the last argument carries
		// the committed value.
		top := L.GetTop()
		if top == 0 {
			commit.set(nil)
			return 0
		}
		commit.set(luaToGo(L.Get(top)))
		return 0
	}))

	L.SetGlobal("fetch", L.NewFunction(func(L *lua.LState) int {
		url := L.CheckString(1)
		var init *lua.LTable
		if L.GetTop() >= 2 {
			init = L.CheckTable(2)
		}
		response, err := r.fetch(L.Context(), L, url, init)
		if err != nil {
			L.RaiseError("fetch %s: %v", url, err)
			return 0
		}
		L.Push(response)
		return 1
	}))
}

// scriptMessage joins all arguments of a script log call into one line.
func scriptMessage(L *lua.LState) string {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, fmt.Sprintf("%v", luaToGo(L.Get(i))))
	}
	return strings.Join(parts, " ")
}

// fetch performs the synchronous HTTP call scripts see. The call is bounded
// by its own timeout and the response body is capped.
func (r *Runtime) fetch(ctx context.Context, L *lua.LState, url string, init *lua.LTable) (*lua.LTable, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	method := http.MethodGet
	var body io.Reader
	var headers map[string]string

	if init != nil {
		if m := L.GetField(init, "method"); m != lua.LNil {
			method = strings.ToUpper(lua.LVAsString(m))
		}
		if b := L.GetField(init, "body"); b != lua.LNil {
			body = strings.NewReader(lua.LVAsString(b))
		}
		if h, ok := L.GetField(init, "headers").(*lua.LTable); ok {
			headers = map[string]string{}
			h.ForEach(func(k, v lua.LValue) {
				headers[lua.LVAsString(k)] = lua.LVAsString(v)
			})
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limited, err := io.ReadAll(io.LimitReader(resp.Body, r.fetchMaxBytes))
	if err != nil {
		return nil, err
	}

	result := L.NewTable()
	L.SetField(result, "status", lua.LNumber(resp.StatusCode))
	L.SetField(result, "ok", lua.LBool(resp.StatusCode >= 200 && resp.StatusCode < 300))
	L.SetField(result, "body", lua.LString(limited))

	headerTable := L.NewTable()
	for name := range resp.Header {
		L.SetField(headerTable, strings.ToLower(name), lua.LString(resp.Header.Get(name)))
	}
	L.SetField(result, "headers", headerTable)
	return result, nil
}

// luaToGo converts a Lua value into its JSON-shaped Go counterpart. Tables
// with consecutive integer keys starting at 1 become slices, all other
// tables become maps.
func luaToGo(v lua.LValue) any {
	switch value := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(value)
	case lua.LNumber:
		return float64(value)
	case lua.LString:
		return string(value)
	case *lua.LTable:
		length := value.Len()
		if length > 0 {
			list := make([]any, 0, length)
			for i := 1; i <= length; i++ {
				list = append(list, luaToGo(value.RawGetInt(i)))
			}
			return list
		}
		m := map[string]any{}
		value.ForEach(func(k, v lua.LValue) {
			m[lua.LVAsString(k)] = luaToGo(v)
		})
		if len(m) == 0 {
			return map[string]any{}
		}
		return m
	default:
		return lua.LVAsString(v)
	}
}
