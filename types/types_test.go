/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageRequestBounds(t *testing.T) {
	req := NewPageRequest(0, 0)
	require.Equal(t, 1, req.Number())
	require.Equal(t, DefaultPageSize, req.Size())
	require.Equal(t, 0, req.Offset())

	req = NewPageRequest(3, 25).Where("active = ?", true).OrderBy("id DESC")
	require.Equal(t, 50, req.Offset())
	require.Equal(t, "active = ?", req.Filter.Expr)
	require.Equal(t, []interface{}{true}, req.Filter.Args)
	require.Equal(t, []string{"id DESC"}, req.Orders)

	require.Equal(t, MaxPageSize, NewPageRequest(1, 5000).Size())
}

func TestNewPage(t *testing.T) {
	type item struct{ N int }
	p := NewPage[item](NewPageRequest(1, 2), 5, []*item{{1}, {2}})
	require.Equal(t, 3, p.Pages)
	require.True(t, p.HasNext())
	require.Len(t, p.Items, 2)

	empty := NewPage[item](NewPageRequest(1, 2), 0, nil)
	require.Zero(t, empty.Pages)
	require.False(t, empty.HasNext())
	require.NotNil(t, empty.Items)
}

func TestJSONColumns(t *testing.T) {
	v, err := JSONMap{"theme": "dark"}.Value()
	require.NoError(t, err)
	require.Equal(t, `{"theme":"dark"}`, v)

	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"a":1}`)))
	require.Equal(t, float64(1), m["a"])
	require.NoError(t, m.Scan(`{"b":"x"}`))
	require.Equal(t, JSONMap{"b": "x"}, m)
	require.NoError(t, m.Scan(nil))
	require.Empty(t, m)
	require.Error(t, m.Scan(42))

	var l JSONList
	require.NoError(t, l.Scan(`[1,"two"]`))
	require.Equal(t, JSONList{float64(1), "two"}, l)
	v, err = JSONList(nil).Value()
	require.NoError(t, err)
	require.Nil(t, v)
}
