package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/navigation"
	"github.com/hitoshi/storefront/internal/route"
)

// passwordEnv はloginとregisterで--password未指定時に参照する環境変数。
const passwordEnv = "STOREFRONT_PASSWORD"

// cli はコマンド間で共有する出力先。
type cli struct {
	out    io.Writer
	logOut io.Writer
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。ログはlogOutへ、コマンドの結果はoutへ出力する。
func Run(ctx context.Context, out, logOut io.Writer, args []string) error {
	root := NewRootCommand(out, logOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はstorefrontコマンドツリーを生成する。
func NewRootCommand(out, logOut io.Writer) *cobra.Command {
	c := &cli{out: out, logOut: logOut}

	root := &cobra.Command{
		Use:   "storefront",
		Short: "ストアフロントのセッションとページアクセスを管理する",
		Long: `storefront はストアフロントのログイン状態を保持し、
ページ遷移ごとにアクセス可否を判定するゲートです。
シェルサーバーとして起動するか、CLIから直接ページを開いて判定を確認できます。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(logOut)

	root.AddCommand(
		c.serveCommand(),
		c.openCommand(),
		c.loginCommand(),
		c.registerCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.routesCommand(),
		c.migrateCommand(),
		c.healthcheckCommand(),
	)
	return root
}

// withComponents は設定を読み込み、部品を組み立ててfnを実行する。
func (c *cli) withComponents(ctx context.Context, fn func(*Components) error) error {
	cfg, log, err := Init(c.logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	comps, err := Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comps.Close()

	return fn(comps)
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "シェルサーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withComponents(cmd.Context(), func(comps *Components) error {
				return runServe(cmd.Context(), comps)
			})
		},
	}
}

func (c *cli) openCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>...",
		Short: "ページを開き、アクセス判定の結果を表示する",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withComponents(cmd.Context(), func(comps *Components) error {
				rows := pterm.TableData{{"REQUESTED", "DECISION", "PATH", "ROUTE"}}
				var failed error
				for _, p := range args {
					res, err := comps.Interceptor.Navigate(cmd.Context(), p)
					if err != nil {
						if errors.Is(err, navigation.ErrRedirectLoop) {
							pterm.Error.WithWriter(c.out).Printf("%s: リダイレクトが繰り返されました\n", p)
						}
						failed = errors.Join(failed, fmt.Errorf("%s: %w", p, err))
						continue
					}
					rows = append(rows, []string{res.Requested, res.Decision.String(), res.Path, res.Route.Name})
				}
				if len(rows) > 1 {
					if err := pterm.DefaultTable.WithHasHeader().WithWriter(c.out).WithData(rows).Render(); err != nil {
						return err
					}
				}
				return failed
			})
		},
	}
}

// credentialFlags はloginとregisterで共通のフラグ。
type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "メールアドレス")
	cmd.Flags().StringVar(&f.password, "password", "", "パスワード（未指定の場合は"+passwordEnv+"を参照）")
	_ = cmd.MarkFlagRequired("email")
}

func (f *credentialFlags) resolvedPassword() string {
	if f.password != "" {
		return f.password
	}
	return os.Getenv(passwordEnv)
}

func (c *cli) loginCommand() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "ログインしてトークンを保存する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withComponents(cmd.Context(), func(comps *Components) error {
				if err := comps.Auth.Login(cmd.Context(), flags.email, flags.resolvedPassword()); err != nil {
					pterm.Error.WithWriter(c.out).Println("ログインに失敗しました")
					return err
				}
				pterm.Success.WithWriter(c.out).Printf("%s としてログインしました\n", strings.TrimSpace(flags.email))
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *cli) registerCommand() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "新しいユーザーを登録する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withComponents(cmd.Context(), func(comps *Components) error {
				if err := comps.Auth.Register(cmd.Context(), flags.email, flags.resolvedPassword()); err != nil {
					pterm.Error.WithWriter(c.out).Println("ユーザー登録に失敗しました")
					return err
				}
				pterm.Success.WithWriter(c.out).Println("ユーザーを登録しました。loginコマンドでログインしてください")
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "保存済みのトークンを削除する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withComponents(cmd.Context(), func(comps *Components) error {
				if !comps.Auth.Logout(cmd.Context()) {
					pterm.Info.WithWriter(c.out).Println("ログインしていません")
					return nil
				}
				pterm.Success.WithWriter(c.out).Println("ログアウトしました")
				return nil
			})
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "現在のユーザー情報を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withComponents(cmd.Context(), func(comps *Components) error {
				id, err := comps.Auth.CurrentUser(cmd.Context())
				if err != nil {
					pterm.Warning.WithWriter(c.out).Println("ユーザー情報を取得できませんでした")
					return err
				}
				info := pterm.Info.WithWriter(c.out)
				info.Printf("Email: %s\n", id.Email)
				info.Printf("Role: %s\n", id.Role)
				info.Printf("Admin: %t\n", id.IsPrivileged())
				return nil
			})
		},
	}
}

func (c *cli) routesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "ルートテーブルとアクセス要件を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := pterm.TableData{{"NAME", "PATTERN", "AUTH", "ADMIN"}}
			for _, r := range route.DefaultTable().Routes() {
				rows = append(rows, []string{
					r.Name,
					r.Pattern,
					yesNo(r.Requirement.RequiresAuth),
					yesNo(r.Requirement.RequiresPrivilege),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithWriter(c.out).WithData(rows).Render()
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "PostgreSQLストレージのマイグレーションを実行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(c.logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg, log)
		},
	}
}

// healthcheckCommand は軽量サブコマンドのため、設定の読み込みをスキップする。
func (c *cli) healthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "起動中のシェルサーバーのヘルスチェックを行う",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = config.DefaultServerPort
			}
			return runHealthcheck(cmd.Context(), port)
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
