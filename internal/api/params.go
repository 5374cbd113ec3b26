package api

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chasingmana/weather-api/internal/weather"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	return v
}

// FieldError is one entry of a 422 response.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError collects every rejected query parameter of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, strings.Join(f.Loc, ".")+": "+f.Msg)
	}
	return "invalid parameters: " + strings.Join(msgs, "; ")
}

func queryFieldError(name, msg, typ string) FieldError {
	return FieldError{Loc: []string{"query", name}, Msg: msg, Type: typ}
}

type geocodeParams struct {
	Q     string `query:"q" validate:"required"`
	Limit int    `query:"limit" validate:"gte=1,lte=5"`
}

type currentParams struct {
	Lat   *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon   *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	Units string   `query:"units" validate:"oneof=metric imperial standard"`
}

type forecastParams struct {
	Lat   *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon   *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	Days  int      `query:"days" validate:"gte=1,lte=5"`
	Units string   `query:"units" validate:"oneof=metric imperial standard"`
}

// queryReader parses raw query values, remembering malformed ones.
type queryReader struct {
	values url.Values
	errs   []FieldError
}

func (r *queryReader) intParam(name string, def int) int {
	raw := r.values.Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		r.errs = append(r.errs, queryFieldError(name, "value is not a valid integer", "type_error.integer"))
		return def
	}
	return n
}

func (r *queryReader) floatParam(name string) *float64 {
	raw := r.values.Get(name)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		r.errs = append(r.errs, queryFieldError(name, "value is not a valid float", "type_error.float"))
		return nil
	}
	return &f
}

func (r *queryReader) stringParam(name, def string) string {
	if raw, ok := r.values[name]; ok && len(raw) > 0 {
		return raw[0]
	}
	return def
}

// check validates s once every value parsed cleanly.
func (r *queryReader) check(s any) error {
	if len(r.errs) > 0 {
		return &ValidationError{Fields: r.errs}
	}
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, describe(fe))
		}
		return &ValidationError{Fields: fields}
	}
	return nil
}

func describe(fe validator.FieldError) FieldError {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return queryFieldError(name, "field required", "value_error.missing")
	case "gte":
		return queryFieldError(name, "ensure this value is greater than or equal to "+fe.Param(), "value_error.number.not_ge")
	case "lte":
		return queryFieldError(name, "ensure this value is less than or equal to "+fe.Param(), "value_error.number.not_le")
	case "oneof":
		return queryFieldError(name, "value must be one of: "+strings.ReplaceAll(fe.Param(), " ", ", "), "value_error.enum")
	default:
		return queryFieldError(name, fmt.Sprintf("failed %s validation", fe.Tag()), "value_error")
	}
}

func parseGeocodeParams(values url.Values) (geocodeParams, error) {
	r := queryReader{values: values}
	p := geocodeParams{
		Q:     r.stringParam("q", ""),
		Limit: r.intParam("limit", weather.MaxGeocodeResults),
	}
	return p, r.check(p)
}

func parseCurrentParams(values url.Values) (currentParams, error) {
	r := queryReader{values: values}
	p := currentParams{
		Lat:   r.floatParam("lat"),
		Lon:   r.floatParam("lon"),
		Units: r.stringParam("units", weather.UnitsMetric),
	}
	return p, r.check(p)
}

func parseForecastParams(values url.Values) (forecastParams, error) {
	r := queryReader{values: values}
	p := forecastParams{
		Lat:   r.floatParam("lat"),
		Lon:   r.floatParam("lon"),
		Days:  r.intParam("days", weather.MaxForecastDays),
		Units: r.stringParam("units", weather.UnitsMetric),
	}
	return p, r.check(p)
}
