package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshi/storefront/internal/model"
)

var allInputs = func() []Input {
	var inputs []Input
	for _, hasToken := range []bool{false, true} {
		for _, loaded := range []bool{false, true} {
			for _, privileged := range []bool{false, true} {
				inputs = append(inputs, Input{HasToken: hasToken, IdentityLoaded: loaded, Privileged: privileged})
			}
		}
	}
	return inputs
}()

var allRequirements = []model.RouteRequirement{
	{},
	{RequiresAuth: true},
	{RequiresPrivilege: true},
	{RequiresAuth: true, RequiresPrivilege: true},
}

func TestNewEvaluator_Defaults(t *testing.T) {
	e := NewEvaluator("", "")

	assert.Equal(t, "/login", e.LoginPath())
	assert.Equal(t, "/", e.FallbackPath())
}

func TestEvaluate_PublicRouteAlwaysAllows(t *testing.T) {
	e := NewEvaluator("", "")

	for _, in := range allInputs {
		assert.Equal(t, model.Allow(), e.Evaluate(model.RouteRequirement{}, in), "input %+v", in)
	}
}

func TestEvaluate_AuthRequiredWithoutToken_RedirectsToLogin(t *testing.T) {
	e := NewEvaluator("", "")

	for _, req := range allRequirements[1:] {
		for _, in := range allInputs {
			if in.HasToken {
				continue
			}
			assert.Equal(t, model.Redirect("/login"), e.Evaluate(req, in), "req %+v input %+v", req, in)
		}
	}
}

func TestEvaluate_Table(t *testing.T) {
	e := NewEvaluator("/signin", "/products")

	tests := []struct {
		name string
		req  model.RouteRequirement
		in   Input
		want model.Decision
	}{
		{
			name: "auth only with token",
			req:  model.RouteRequirement{RequiresAuth: true},
			in:   Input{HasToken: true},
			want: model.Allow(),
		},
		{
			name: "privileged route, standard user",
			req:  model.RouteRequirement{RequiresAuth: true, RequiresPrivilege: true},
			in:   Input{HasToken: true, IdentityLoaded: true},
			want: model.Redirect("/products"),
		},
		{
			name: "privileged route, admin",
			req:  model.RouteRequirement{RequiresAuth: true, RequiresPrivilege: true},
			in:   Input{HasToken: true, IdentityLoaded: true, Privileged: true},
			want: model.Allow(),
		},
		{
			name: "privileged route, identity unavailable",
			req:  model.RouteRequirement{RequiresAuth: true, RequiresPrivilege: true},
			in:   Input{HasToken: true},
			want: model.Redirect("/products"),
		},
		{
			name: "privileged flag without loaded identity is not trusted",
			req:  model.RouteRequirement{RequiresAuth: true, RequiresPrivilege: true},
			in:   Input{HasToken: true, Privileged: true},
			want: model.Redirect("/products"),
		},
		{
			name: "privilege without auth flag and no token goes to login",
			req:  model.RouteRequirement{RequiresPrivilege: true},
			in:   Input{IdentityLoaded: true, Privileged: true},
			want: model.Redirect("/signin"),
		},
		{
			name: "privilege without auth flag, admin with token",
			req:  model.RouteRequirement{RequiresPrivilege: true},
			in:   Input{HasToken: true, IdentityLoaded: true, Privileged: true},
			want: model.Allow(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(tt.req, tt.in))
		})
	}
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	e := NewEvaluator("", "")

	for _, req := range allRequirements {
		for _, in := range allInputs {
			first := e.Evaluate(req, in)
			second := e.Evaluate(req, in)
			assert.Equal(t, first, second, "req %+v input %+v", req, in)
		}
	}
}

func TestEvaluate_NeverAllowsPrivilegedRouteWithoutPrivilege(t *testing.T) {
	e := NewEvaluator("", "")

	for _, req := range allRequirements {
		if !req.RequiresPrivilege {
			continue
		}
		for _, in := range allInputs {
			if in.HasToken && in.IdentityLoaded && in.Privileged {
				continue
			}
			assert.False(t, e.Evaluate(req, in).IsAllow(), "req %+v input %+v", req, in)
		}
	}
}
