/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeadersCaseInsensitiveLookup(t *testing.T) {
	h := Headers{{Name: "CSeq", Value: "1"}}
	v, ok := h.Get("cseq")
	require.True(t, ok)
	require.Equal(t, "1", v)

	_, ok = h.Get("Content-Length")
	require.False(t, ok)
}

func TestHeadersSetReplacesExisting(t *testing.T) {
	h := Headers{{Name: "CSeq", Value: "1"}}
	h.Set("cseq", "2")
	require.Len(t, h, 1)
	v, _ := h.Get("CSeq")
	require.Equal(t, "2", v)
}

func TestRequestMarshalRoundTrip(t *testing.T) {
	req := &Request{
		Method:  MethodDescribe,
		URI:     "rtsp://h/p",
		Version: "1.0",
		Headers: Headers{{Name: "CSeq", Value: "2"}},
	}

	raw := req.marshal()

	p := NewParser()
	parsed, _, err := p.Feed(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, req.Method, parsed[0].Method)
	require.Equal(t, req.URI, parsed[0].URI)
	cseq, _ := parsed[0].CSeq()
	require.Equal(t, 2, cseq)
}

func TestResponseMarshalIncludesContentLength(t *testing.T) {
	resp := &Response{Version: "1.0", StatusCode: 200, Reason: "OK", Body: []byte("v=0\r\n")}
	raw := resp.marshal()

	p := NewParser()
	_, parsed, err := p.Feed(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, []byte("v=0\r\n"), parsed[0].Body)
	cl, ok := parsed[0].Headers.Get("Content-Length")
	require.True(t, ok)
	require.Equal(t, "5", cl)
}
