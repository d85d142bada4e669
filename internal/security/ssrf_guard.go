// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はストアフロントAPIへの接続先を制限するインターフェース。
// SAFE_TRANSPORTが有効な場合、APIクライアントはこのガードが生成するクライアントを使用する。
type SSRFGuardService interface {
	// NewSafeClient はプライベートIP、ループバック、リンクローカル、
	// メタデータIPへの接続をDialerレベルで拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error
}

// allowedSchemes は許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// defaultPorts は追加指定がない場合に許可するポート。
var defaultPorts = []int{80, 443}

// blockedNetworks はブロック対象のネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
}

func mustParseCIDRs(cidrs ...string) []net.IPNet {
	networks := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, *network)
	}
	return networks
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct {
	ports []int
}

var _ SSRFGuardService = (*ssrfGuard)(nil)

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
// portsを省略した場合は80と443のみを許可する。
func NewSSRFGuard(ports ...int) *ssrfGuard {
	if len(ports) == 0 {
		ports = defaultPorts
	}
	return &ssrfGuard{ports: ports}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLのスキーム、ポート、ホストを検証する。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	port := parsed.Port()
	if port == "" {
		port = "443"
		if scheme == "http" {
			port = "80"
		}
	}
	if !g.isAllowedPort(port) {
		return fmt.Errorf("disallowed port: %s (allowed: %v)", port, g.ports)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// PortOf はURLのポート番号を返す。ポートが省略されている場合はスキームの既定値を返す。
func PortOf(rawURL string) (int, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid URL: %w", err)
	}
	if p := parsed.Port(); p != "" {
		return strconv.Atoi(p)
	}
	if strings.EqualFold(parsed.Scheme, "http") {
		return 80, nil
	}
	return 443, nil
}

func (g *ssrfGuard) isAllowedPort(port string) bool {
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	for _, allowed := range g.ports {
		if n == allowed {
			return true
		}
	}
	return false
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
