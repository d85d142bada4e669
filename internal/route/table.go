package route

import "github.com/hitoshi/storefront/internal/model"

var (
	public    = model.RouteRequirement{}
	authOnly  = model.RouteRequirement{RequiresAuth: true}
	adminOnly = model.RouteRequirement{RequiresAuth: true, RequiresPrivilege: true}
)

// DefaultRoutes はストアフロントのルート定義を返す。
func DefaultRoutes() []Route {
	return []Route{
		{Name: "Home", Pattern: "/", Requirement: public},
		{Name: "Products", Pattern: "/products", Requirement: public},
		{Name: "ProductDetail", Pattern: "/products/:id", Requirement: public},
		{Name: "Login", Pattern: "/login", Requirement: public},
		{Name: "Register", Pattern: "/register", Requirement: public},
		{Name: "Cart", Pattern: "/cart", Requirement: authOnly},
		{Name: "Orders", Pattern: "/orders", Requirement: authOnly},

		// 管理画面
		{Name: "AdminDashboard", Pattern: "/admin", Requirement: adminOnly},
		{Name: "AdminProducts", Pattern: "/admin/products", Requirement: adminOnly},
		{Name: "AdminProductNew", Pattern: "/admin/products/new", Requirement: adminOnly},
		{Name: "AdminProductEdit", Pattern: "/admin/products/:id/edit", Requirement: adminOnly},
	}
}

// DefaultTable はDefaultRoutesから生成したルートテーブルを返す。
func DefaultTable() *Table {
	return MustNewTable(DefaultRoutes()...)
}
