package model

import "strings"

// Role はストアフロントのユーザーロールを表す。
type Role string

const (
	// RoleCustomer は一般ユーザー（標準ロール）。APIのデフォルトロール。
	RoleCustomer Role = "customer"
	// RoleAdmin は管理者ロール。管理画面へのアクセス権を持つ。
	RoleAdmin Role = "admin"
)

// ParseRole はAPIから受け取ったロール文字列をRoleに変換する。
// "standard" はRoleCustomerの別名として扱う。
// 未知のロールはそのまま保持し、特権なしとして扱う。
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "customer", "standard":
		return RoleCustomer
	default:
		return Role(strings.TrimSpace(s))
	}
}

// IsPrivileged はロールが管理画面へのアクセス権を持つかを返す。
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin
}

// Identity は識別エンドポイントから取得したログインユーザーの情報を表す。
// 必須フィールドを検証済みのレコードのみがIdentityとして扱われる。
type Identity struct {
	ID    uint
	Email string
	Role  Role
}

// IsPrivileged はユーザーが特権ロールを持つかを返す。
// nilの場合はfalseを返す（フェイルクローズ）。
func (i *Identity) IsPrivileged() bool {
	if i == nil {
		return false
	}
	return i.Role.IsPrivileged()
}
