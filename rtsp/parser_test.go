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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDescribeRequest(t *testing.T) {
	raw := "DESCRIBE rtsp://h/p RTSP/1.0\r\nCSeq: 2\r\n\r\n"

	p := NewParser()
	requests, responses, err := p.Feed([]byte(raw))
	require.NoError(t, err)
	require.Empty(t, responses)
	require.Len(t, requests, 1)

	req := requests[0]
	require.Equal(t, MethodDescribe, req.Method)
	require.Equal(t, "rtsp://h/p", req.URI)
	require.Equal(t, "1.0", req.Version)
	cseq, ok := req.CSeq()
	require.True(t, ok)
	require.Equal(t, 2, cseq)
	require.Empty(t, req.Body)
}

func TestParseRequestSplitAcrossFeeds(t *testing.T) {
	raw := "DESCRIBE rtsp://h/p RTSP/1.0\r\nCSeq: 2\r\n\r\n"

	p := NewParser()
	var requests []*Request
	for i := 0; i < len(raw); i++ {
		reqs, _, err := p.Feed([]byte{raw[i]})
		require.NoError(t, err)
		requests = append(requests, reqs...)
	}
	require.Len(t, requests, 1)
	require.Equal(t, MethodDescribe, requests[0].Method)
}

func TestParseRequestWithBody(t *testing.T) {
	body := "v=0\r\no=- 1 0 IN IP4 10.0.0.1\r\n"
	raw := "ANNOUNCE rtsp://h/p RTSP/1.0\r\n" +
		"CSeq: 5\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body

	p := NewParser()
	requests, _, err := p.Feed([]byte(raw))
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, []byte(body), requests[0].Body)
	ct, ok := requests[0].Headers.Get("content-type")
	require.True(t, ok)
	require.Equal(t, "application/sdp", ct)
}

func TestParseTwoRequestsInOneFeed(t *testing.T) {
	raw := "OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n" +
		"OPTIONS * RTSP/1.0\r\nCSeq: 2\r\n\r\n"

	p := NewParser()
	requests, _, err := p.Feed([]byte(raw))
	require.NoError(t, err)
	require.Len(t, requests, 2)
	c1, _ := requests[0].CSeq()
	c2, _ := requests[1].CSeq()
	require.Equal(t, 1, c1)
	require.Equal(t, 2, c2)
}

func TestParseResponse(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 2\r\n\r\n"

	p := NewParser()
	requests, responses, err := p.Feed([]byte(raw))
	require.NoError(t, err)
	require.Empty(t, requests)
	require.Len(t, responses, 1)

	resp := responses[0]
	require.Equal(t, "1.0", resp.Version)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "OK", resp.Reason)
	cseq, ok := resp.CSeq()
	require.True(t, ok)
	require.Equal(t, 2, cseq)
}

func TestParseRejectsMalformedContentLength(t *testing.T) {
	raw := "DESCRIBE rtsp://h/p RTSP/1.0\r\nContent-Length: notanumber\r\n\r\n"
	p := NewParser()
	_, _, err := p.Feed([]byte(raw))
	require.Error(t, err)
}

