// Package server contains HTTP route tables and reply encoding utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"sort"

	"goji.io"
)

// HumanPayload is a struct that wraps a single value of the basic types
// and can encode itself to a JSON reply with a type-appropriate key
type HumanPayload struct {
	// T holds the type of the value
	T types.BasicKind

	// Bool holds a boolean
	Bool bool

	// Int holds an integer
	Int int

	// Float holds a double precision float
	Float float64

	// String holds a string
	String string
}

// EncodeAndRespond writes the payload to w as JSON, e.g. {"f64": 1.5}
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	var err error
	enc := json.NewEncoder(w)
	switch hp.T {
	case types.Bool:
		err = enc.Encode(BoolT{Bool: hp.Bool})
	case types.Int:
		err = enc.Encode(IntT{Int: hp.Int})
	case types.Float64:
		err = enc.Encode(FloatT{F64: hp.Float})
	case types.String:
		err = enc.Encode(StrT{Str: hp.String})
	default:
		err = fmt.Errorf("unknown payload type %v", hp.T)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// FloatT is a float64 held behind the key f64
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is an int held behind the key int
type IntT struct {
	Int int `json:"int"`
}

// StrT is a string held behind the key str
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a bool held behind the key bool
type BoolT struct {
	Bool bool `json:"bool"`
}

// RouteTable maps goji patterns to handler funcs
type RouteTable map[goji.Pattern]http.HandlerFunc

// Endpoints returns the sorted list of endpoints in the table
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, fmt.Sprint(k))
	}
	sort.Strings(routes)
	return routes
}

// Bind attaches each route in the table to mux
func (rt RouteTable) Bind(mux *goji.Mux) {
	for p, h := range rt {
		mux.Handle(p, h)
	}
}

// HTTPer is a type which can yield its route table for binding to a mux
type HTTPer interface {
	RT() RouteTable
}
