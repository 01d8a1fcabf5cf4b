// Package tmc provides an HTTP interface to test and measurement devices
package tmc

import (
	"net/http"

	"goji.io/pat"

	"github.com/nasa-jpl/bodesweep/generichttp"
	"github.com/nasa-jpl/bodesweep/server"
)

// FunctionGenerator describes an interface to a function generator
type FunctionGenerator interface {
	// SetFunction sets the function, e.g. "SIN"
	SetFunction(string) error

	// GetFunction returns the current function type used
	GetFunction() (string, error)

	// SetFrequency configures the frequency of the output waveform
	SetFrequency(float64) error

	// GetFrequency gets the frequency of the output waveform
	GetFrequency() (float64, error)

	// SetVoltage configures the amplitude of the output waveform
	SetVoltage(float64) error

	// GetVoltage retrieves the amplitude of the output waveform
	GetVoltage() (float64, error)

	// SetOffset configures the offset of the output waveform
	SetOffset(float64) error

	// GetOffset retrieves the offset of the output waveform
	GetOffset() (float64, error)

	// EnableOutput begins outputting the signal on the output connector
	EnableOutput() error

	// DisableOutput ceases output on the output connector
	DisableOutput() error

	// GetOutput queries if the generator output is active
	GetOutput() (bool, error)
}

// HTTPFunctionGenerator wraps a function generator in an HTTP route table
type HTTPFunctionGenerator struct {
	FG FunctionGenerator

	RouteTable server.RouteTable
}

// NewHTTPFunctionGenerator wraps fg with an HTTP interface
func NewHTTPFunctionGenerator(fg FunctionGenerator) HTTPFunctionGenerator {
	w := HTTPFunctionGenerator{FG: fg}
	rt := server.RouteTable{}
	rt[pat.Get("/function")] = GetFunction(fg)
	rt[pat.Post("/function")] = SetFunction(fg)
	rt[pat.Get("/frequency")] = GetFrequency(fg)
	rt[pat.Post("/frequency")] = SetFrequency(fg)
	rt[pat.Get("/voltage")] = GetVoltage(fg)
	rt[pat.Post("/voltage")] = SetVoltage(fg)
	rt[pat.Get("/offset")] = GetOffset(fg)
	rt[pat.Post("/offset")] = SetOffset(fg)
	rt[pat.Get("/output")] = GetOutput(fg)
	rt[pat.Post("/output")] = SetOutput(fg)
	w.RouteTable = rt
	return w
}

// RT satisfies server.HTTPer
func (h HTTPFunctionGenerator) RT() server.RouteTable {
	return h.RouteTable
}

// SetFunction exposes an HTTP interface to the SetFunction method
func SetFunction(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.SetString(fg.SetFunction)
}

// GetFunction exposes an HTTP interface to the GetFunction method
func GetFunction(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.GetString(fg.GetFunction)
}

// SetFrequency exposes an HTTP interface to the SetFrequency method
func SetFrequency(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.SetFloat(fg.SetFrequency)
}

// GetFrequency exposes an HTTP interface to the GetFrequency method
func GetFrequency(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.GetFloat(fg.GetFrequency)
}

// SetVoltage exposes an HTTP interface to the SetVoltage method
func SetVoltage(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.SetFloat(fg.SetVoltage)
}

// GetVoltage exposes an HTTP interface to the GetVoltage method
func GetVoltage(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.GetFloat(fg.GetVoltage)
}

// SetOffset exposes an HTTP interface to the SetOffset method
func SetOffset(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.SetFloat(fg.SetOffset)
}

// GetOffset exposes an HTTP interface to the GetOffset method
func GetOffset(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.GetFloat(fg.GetOffset)
}

// SetOutput exposes an HTTP interface to the output control methods
func SetOutput(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.SetBool(fg.EnableOutput, fg.DisableOutput)
}

// GetOutput exposes an HTTP interface to the GetOutput method
func GetOutput(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.GetBool(fg.GetOutput)
}
