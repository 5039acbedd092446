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
	"fmt"
	"strconv"
	"strings"
)

// parserState is one state of the byte-wise RTSP message parser. The start
// line walks MethodStart -> Token1 -> Token2 -> Token3 -> StartLineLF
// (Token3 carries the request's "RTSP/1.0" version or the response's reason
// phrase; major/minor are split out of it once the token is complete rather
// than tracked digit-by-digit, since both halves always arrive as part of
// the same token). Headers then walk HeaderStart -> HeaderName ->
// HeaderColon -> HeaderValue -> HeaderValueLF, looping back to HeaderStart
// until a blank line, then Body once Content-Length is known.
type parserState int

const (
	stateMethodStart parserState = iota
	stateToken1
	stateToken2
	stateToken3
	stateStartLineLF
	stateHeaderStart
	stateHeaderName
	stateHeaderColon
	stateHeaderValue
	stateHeaderValueLF
	stateHeaderBlankLF
	stateBody
)

// Parser incrementally decodes RTSP requests and responses from a byte
// stream, one Feed call per available chunk. It retains state across calls
// so a message split across TCP reads parses correctly.
type Parser struct {
	state  parserState
	tok1   strings.Builder
	tok2   strings.Builder
	tok3   strings.Builder
	isResp bool

	headerName strings.Builder
	headerVal  strings.Builder
	headers    Headers

	contentLength int
	body          []byte

	pendingMethod  Method
	pendingURI     string
	pendingVersion string
	pendingStatus  int
	pendingReason  string
}

// NewParser returns a parser ready to decode the start of a new message.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes data, returning every message completed along the way.
// Requests and responses interleave in the returned slices according to
// which arrived first; callers that know their connection's role typically
// only ever receive one of the two slices populated.
func (p *Parser) Feed(data []byte) (requests []*Request, responses []*Response, err error) {
	for _, c := range data {
		req, resp, e := p.feedByte(c)
		if e != nil {
			return requests, responses, e
		}
		if req != nil {
			requests = append(requests, req)
		}
		if resp != nil {
			responses = append(responses, resp)
		}
	}
	return requests, responses, nil
}

func (p *Parser) feedByte(c byte) (*Request, *Response, error) {
	switch p.state {
	case stateMethodStart:
		if c == '\r' || c == '\n' {
			return nil, nil, nil // tolerate keep-alive blank lines between messages
		}
		p.tok1.WriteByte(c)
		p.state = stateToken1
		return nil, nil, nil

	case stateToken1:
		if c == ' ' {
			p.isResp = strings.HasPrefix(p.tok1.String(), "RTSP/")
			p.state = stateToken2
			return nil, nil, nil
		}
		p.tok1.WriteByte(c)
		return nil, nil, nil

	case stateToken2:
		if c == ' ' {
			p.state = stateToken3
			return nil, nil, nil
		}
		p.tok2.WriteByte(c)
		return nil, nil, nil

	case stateToken3:
		if c == '\r' {
			p.state = stateStartLineLF
			return nil, nil, nil
		}
		if c == ' ' && !p.isResp && p.tok3.Len() == 0 {
			return nil, nil, nil // tolerate repeated separator spaces
		}
		p.tok3.WriteByte(c)
		return nil, nil, nil

	case stateStartLineLF:
		if c != '\n' {
			return nil, nil, fmt.Errorf("rtsp: malformed start line, expected LF")
		}
		if err := p.finishStartLine(); err != nil {
			return nil, nil, err
		}
		p.state = stateHeaderStart
		return nil, nil, nil

	case stateHeaderStart:
		if c == '\r' {
			p.state = stateHeaderBlankLF
			return nil, nil, nil
		}
		if c == '\n' {
			return p.finishHeaders()
		}
		p.headerName.WriteByte(c)
		p.state = stateHeaderName
		return nil, nil, nil

	case stateHeaderBlankLF:
		if c != '\n' {
			return nil, nil, fmt.Errorf("rtsp: malformed blank line, expected LF")
		}
		return p.finishHeaders()

	case stateHeaderName:
		if c == ':' {
			p.state = stateHeaderColon
			return nil, nil, nil
		}
		p.headerName.WriteByte(c)
		return nil, nil, nil

	case stateHeaderColon:
		if c == ' ' || c == '\t' {
			return nil, nil, nil
		}
		if c == '\r' {
			p.state = stateHeaderValueLF
			return nil, nil, nil
		}
		p.headerVal.WriteByte(c)
		p.state = stateHeaderValue
		return nil, nil, nil

	case stateHeaderValue:
		if c == '\r' {
			p.state = stateHeaderValueLF
			return nil, nil, nil
		}
		p.headerVal.WriteByte(c)
		return nil, nil, nil

	case stateHeaderValueLF:
		if c != '\n' {
			return nil, nil, fmt.Errorf("rtsp: malformed header line, expected LF")
		}
		name := p.headerName.String()
		value := strings.TrimSpace(p.headerVal.String())
		p.headers = append(p.headers, Header{Name: name, Value: value})
		if strings.EqualFold(name, "Content-Length") {
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, nil, fmt.Errorf("rtsp: malformed Content-Length %q: %w", value, err)
			}
			p.contentLength = n
		}
		p.headerName.Reset()
		p.headerVal.Reset()
		p.state = stateHeaderStart
		return nil, nil, nil

	case stateBody:
		p.body = append(p.body, c)
		if len(p.body) < p.contentLength {
			return nil, nil, nil
		}
		return p.complete()

	default:
		return nil, nil, fmt.Errorf("rtsp: parser in unknown state")
	}
}

func (p *Parser) finishStartLine() error {
	if p.isResp {
		major, minor, err := splitVersion(p.tok1.String())
		if err != nil {
			return err
		}
		code, err := strconv.Atoi(p.tok2.String())
		if err != nil {
			return fmt.Errorf("rtsp: malformed status code %q: %w", p.tok2.String(), err)
		}
		p.pendingVersion = major + "." + minor
		p.pendingStatus = code
		p.pendingReason = p.tok3.String()
	} else {
		major, minor, err := splitVersion(p.tok3.String())
		if err != nil {
			return err
		}
		p.pendingMethod = Method(p.tok1.String())
		p.pendingURI = p.tok2.String()
		p.pendingVersion = major + "." + minor
	}
	p.tok1.Reset()
	p.tok2.Reset()
	p.tok3.Reset()
	p.contentLength = 0
	return nil
}

func splitVersion(token string) (major, minor string, err error) {
	if !strings.HasPrefix(token, "RTSP/") {
		return "", "", fmt.Errorf("rtsp: malformed version token %q", token)
	}
	rest := strings.TrimPrefix(token, "RTSP/")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("rtsp: malformed version token %q", token)
	}
	return parts[0], parts[1], nil
}

func (p *Parser) finishHeaders() (*Request, *Response, error) {
	if p.contentLength > 0 {
		p.body = make([]byte, 0, p.contentLength)
		p.state = stateBody
		return nil, nil, nil
	}
	return p.complete()
}

func (p *Parser) complete() (*Request, *Response, error) {
	headers := p.headers
	body := p.body
	if body == nil {
		body = []byte{}
	}
	var req *Request
	var resp *Response
	if p.isResp {
		resp = &Response{
			Version:    p.pendingVersion,
			StatusCode: p.pendingStatus,
			Reason:     p.pendingReason,
			Headers:    headers,
			Body:       body,
		}
	} else {
		req = &Request{
			Method:  p.pendingMethod,
			URI:     p.pendingURI,
			Version: p.pendingVersion,
			Headers: headers,
			Body:    body,
		}
	}
	p.reset()
	return req, resp, nil
}

func (p *Parser) reset() {
	p.state = stateMethodStart
	p.headers = nil
	p.body = nil
	p.contentLength = 0
	p.headerName.Reset()
	p.headerVal.Reset()
	p.pendingMethod = ""
	p.pendingURI = ""
	p.pendingVersion = ""
	p.pendingStatus = 0
	p.pendingReason = ""
}
