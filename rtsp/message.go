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

// Package rtsp implements a connection-multiplexing RTSP/1.0 client and
// server, and the byte-wise message parser both sit on top of.
package rtsp

import (
	"fmt"
	"strconv"
	"strings"
)

// Method is an RTSP request method.
type Method string

// RTSP/1.0 methods used by RAVENNA session control.
const (
	MethodDescribe  Method = "DESCRIBE"
	MethodSetup     Method = "SETUP"
	MethodPlay      Method = "PLAY"
	MethodTeardown  Method = "TEARDOWN"
	MethodAnnounce  Method = "ANNOUNCE"
	MethodOptions   Method = "OPTIONS"
)

// Header is a single ordered (name, value) pair. RTSP header lookup is
// case-insensitive; the ordered list preserves the wire order for
// round-tripping and for headers that legally repeat.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of Header with case-insensitive lookup.
type Headers []Header

// Get returns the value of the first header matching name, case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Set replaces the first header matching name, or appends one if absent.
func (h *Headers) Set(name, value string) {
	for i, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Add appends a header without replacing any existing one of the same name.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Request is a parsed or to-be-sent RTSP request line plus headers and body.
type Request struct {
	Method  Method
	URI     string
	Version string // e.g. "1.0"
	Headers Headers
	Body    []byte
}

// CSeq returns the request's CSeq header, or ok=false if absent or malformed.
func (r *Request) CSeq() (int, bool) {
	return headerInt(r.Headers, "CSeq")
}

// Response is a parsed or to-be-sent RTSP status line plus headers and body.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Headers    Headers
	Body       []byte
}

// CSeq returns the response's CSeq header, or ok=false if absent or malformed.
func (r *Response) CSeq() (int, bool) {
	return headerInt(r.Headers, "CSeq")
}

func headerInt(h Headers, name string) (int, bool) {
	v, ok := h.Get(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *Request) marshal() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s RTSP/%s\r\n", r.Method, r.URI, r.Version)
	writeHeaders(&b, r.Headers, len(r.Body))
	b.Write(r.Body)
	return []byte(b.String())
}

func (r *Response) marshal() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "RTSP/%s %d %s\r\n", r.Version, r.StatusCode, r.Reason)
	writeHeaders(&b, r.Headers, len(r.Body))
	b.Write(r.Body)
	return []byte(b.String())
}

func writeHeaders(b *strings.Builder, headers Headers, bodyLen int) {
	wroteContentLength := false
	for _, h := range headers {
		fmt.Fprintf(b, "%s: %s\r\n", h.Name, h.Value)
		if strings.EqualFold(h.Name, "Content-Length") {
			wroteContentLength = true
		}
	}
	if bodyLen > 0 && !wroteContentLength {
		fmt.Fprintf(b, "Content-Length: %d\r\n", bodyLen)
	}
	b.WriteString("\r\n")
}
