package hcl

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/asynckit/flowrace/internal/config"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

type requestInput struct {
	URL    string `flow:"url"`
	Method string `flow:"method"`
	Port   int    `flow:"port"`
}

func requestDefs() map[string]*config.InputDefinition {
	get := cty.StringVal("GET")
	return map[string]*config.InputDefinition{
		"url":    {Name: "url", Type: cty.String},
		"method": {Name: "method", Type: cty.String, Default: &get, Optional: true},
		"port":   {Name: "port", Type: cty.Number, Optional: true},
	}
}

func TestDecodeBodyPopulatesFields(t *testing.T) {
	c := NewConverter()
	input := &requestInput{}

	args := map[string]hcl.Expression{
		"url":  expr(t, `"https://example.com"`),
		"port": expr(t, `8080`),
	}

	err := c.DecodeBody(context.Background(), input, args, requestDefs(), &hcl.EvalContext{})
	require.NoError(t, err)
	require.Equal(t, "https://example.com", input.URL)
	require.Equal(t, "GET", input.Method, "default should apply when argument is omitted")
	require.Equal(t, 8080, input.Port)
}

func TestDecodeBodyMissingRequiredArgument(t *testing.T) {
	c := NewConverter()
	input := &requestInput{}

	err := c.DecodeBody(context.Background(), input, nil, requestDefs(), &hcl.EvalContext{})
	require.Error(t, err)
	require.Contains(t, err.Error(), `"url"`)
}

func TestDecodeBodyConvertsCompatibleTypes(t *testing.T) {
	c := NewConverter()
	input := &requestInput{}

	args := map[string]hcl.Expression{
		"url":  expr(t, `"https://example.com"`),
		"port": expr(t, `"9090"`), // string is convertible to number
	}

	err := c.DecodeBody(context.Background(), input, args, requestDefs(), &hcl.EvalContext{})
	require.NoError(t, err)
	require.Equal(t, 9090, input.Port)
}

func TestDecodeBodyEvaluatesVariables(t *testing.T) {
	c := NewConverter()
	input := &requestInput{}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"step": cty.ObjectVal(map[string]cty.Value{
				"resolver": cty.ObjectVal(map[string]cty.Value{
					"addr": cty.ObjectVal(map[string]cty.Value{
						"output": cty.StringVal("https://resolved.example.com"),
					}),
				}),
			}),
		},
	}
	args := map[string]hcl.Expression{
		"url": expr(t, `step.resolver.addr.output`),
	}

	err := c.DecodeBody(context.Background(), input, args, requestDefs(), evalCtx)
	require.NoError(t, err)
	require.Equal(t, "https://resolved.example.com", input.URL)
}

func TestToCtyValue(t *testing.T) {
	c := NewConverter()

	v, err := c.ToCtyValue(map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "v", v.AsValueMap()["k"].AsString())

	passthrough, err := c.ToCtyValue(cty.NumberIntVal(3))
	require.NoError(t, err)
	require.Equal(t, cty.NumberIntVal(3), passthrough)

	nilVal, err := c.ToCtyValue(nil)
	require.NoError(t, err)
	require.Equal(t, cty.NilVal, nilVal)
}
