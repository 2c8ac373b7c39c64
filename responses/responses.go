// Package responses sends HTTP requests and checks that the replies look the
// way callers expect. All failures are reported using the error types in this
// package.
package responses

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

var (
	errNotJSON   = errors.New("body is not valid JSON")
	errNotObject = errors.New("body is not a JSON object")
	errMissing   = errors.New("field is missing")
	errNotString = errors.New("field is not a string")
)

// Do sends the request and reads the whole body. If the request's context is
// done the error matches ErrInterrupted, any other failure is a
// *TransportError
func Do(client *http.Client, req *http.Request) (*Response, error) {
	res, err := client.Do(req)
	if err != nil {
		return nil, classify(req, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, classify(req, err)
	}

	return &Response{
		StatusCode: res.StatusCode,
		Body:       body,
	}, nil
}

func classify(req *http.Request, err error) error {
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return interrupted(ctxErr)
	}

	return &TransportError{Err: err}
}

// AssertSuccess returns an *APIError unless the status code is 2xx
func AssertSuccess(resp *Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	return nil
}

// ParseJSONObject checks that the body is a single JSON object and returns it
func ParseJSONObject(resp *Response) (json.RawMessage, error) {
	if !gjson.ValidBytes(resp.Body) {
		return nil, &ParseError{Err: errNotJSON}
	}

	if !gjson.ParseBytes(resp.Body).IsObject() {
		return nil, &ParseError{Err: errNotObject}
	}

	return json.RawMessage(resp.Body), nil
}

// StringField returns the string value of a top level field in a JSON object
func StringField(obj json.RawMessage, field string) (string, error) {
	result := gjson.GetBytes(obj, gjson.Escape(field))

	switch {
	case !result.Exists():
		return "", &ParseError{Field: field, Err: errMissing}
	case result.Type != gjson.String:
		return "", &ParseError{Field: field, Err: errNotString}
	}

	return result.String(), nil
}
