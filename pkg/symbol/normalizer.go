// Package symbol 负责把用户输入的证券代码规范化为各上游接口要求的形式。
package symbol

import (
	"strings"
	"unicode"

	apperr "stockdata/pkg/error"
)

// Exchange 交易所
type Exchange string

const (
	ExchangeSH      Exchange = "SH"
	ExchangeSZ      Exchange = "SZ"
	ExchangeBJ      Exchange = "BJ"
	ExchangeHK      Exchange = "HK"
	ExchangeUnknown Exchange = ""
)

// Kind 证券类别
type Kind string

const (
	KindStock Kind = "stock"
	KindIndex Kind = "index"
	KindFund  Kind = "fund"
	KindBond  Kind = "bond"
)

// Backend 代码形式所属的上游
type Backend string

const (
	BackendEastmoney  Backend = "eastmoney"  // secid，如 1.600519
	BackendXueqiu     Backend = "xueqiu"     // SH600519
	BackendSina       Backend = "sina"       // sh600519
	BackendDatacenter Backend = "datacenter" // SECUCODE，如 600519.SH
)

// Symbol 规范化后的证券代码
type Symbol struct {
	Raw       string
	Exchange  Exchange
	Code      string
	Kind      Kind
	Canonical string
	Backend   Backend
}

// Equal 比较除 Raw 以外的全部字段
func (s Symbol) Equal(other Symbol) bool {
	return s.Exchange == other.Exchange &&
		s.Code == other.Code &&
		s.Kind == other.Kind &&
		s.Canonical == other.Canonical &&
		s.Backend == other.Backend
}

func (s Symbol) String() string {
	return s.Canonical
}

// As 以另一个上游的形式重新渲染同一证券
func (s Symbol) As(backend Backend) Symbol {
	out := s
	out.Backend = backend
	out.Canonical = render(s.Exchange, s.Code, backend)
	return out
}

type prefixRule struct {
	prefix   string
	exchange Exchange
	kind     Kind
}

// 六位代码前缀表，匹配时最长前缀优先
var prefixTable = []prefixRule{
	{"600", ExchangeSH, KindStock},
	{"601", ExchangeSH, KindStock},
	{"603", ExchangeSH, KindStock},
	{"605", ExchangeSH, KindStock},
	{"688", ExchangeSH, KindStock},
	{"689", ExchangeSH, KindStock},
	{"900", ExchangeSH, KindStock},
	{"50", ExchangeSH, KindFund},
	{"51", ExchangeSH, KindFund},
	{"52", ExchangeSH, KindFund},
	{"56", ExchangeSH, KindFund},
	{"58", ExchangeSH, KindFund},
	{"11", ExchangeSH, KindBond},

	{"000", ExchangeSZ, KindStock},
	{"001", ExchangeSZ, KindStock},
	{"002", ExchangeSZ, KindStock},
	{"003", ExchangeSZ, KindStock},
	{"004", ExchangeSZ, KindStock},
	{"300", ExchangeSZ, KindStock},
	{"301", ExchangeSZ, KindStock},
	{"200", ExchangeSZ, KindStock},
	{"15", ExchangeSZ, KindFund},
	{"16", ExchangeSZ, KindFund},
	{"18", ExchangeSZ, KindFund},
	{"12", ExchangeSZ, KindBond},
	{"399", ExchangeSZ, KindIndex},

	{"43", ExchangeBJ, KindStock},
	{"82", ExchangeBJ, KindStock},
	{"83", ExchangeBJ, KindStock},
	{"87", ExchangeBJ, KindStock},
	{"88", ExchangeBJ, KindStock},
	{"920", ExchangeBJ, KindStock},
	{"899", ExchangeBJ, KindIndex},
}

// lookup 返回最长匹配前缀的规则；exchange 非空时只在该交易所内查找
func lookup(code string, exchange Exchange) (prefixRule, bool) {
	var best prefixRule
	found := false
	for _, rule := range prefixTable {
		if exchange != ExchangeUnknown && rule.exchange != exchange {
			continue
		}
		if strings.HasPrefix(code, rule.prefix) && len(rule.prefix) > len(best.prefix) {
			best = rule
			found = true
		}
	}
	return best, found
}

// kindOf 推断显式指定交易所的代码类别
func kindOf(exchange Exchange, code string) Kind {
	if exchange == ExchangeHK {
		return KindStock
	}
	if rule, ok := lookup(code, exchange); ok {
		return rule.kind
	}
	// 上交所 000 开头为指数，如 SH000001
	if shIndex(exchange, code) {
		return KindIndex
	}
	return KindStock
}

// Normalize 将输入规范化为指定上游的代码形式
//
// 支持裸代码（600519、00700）、带后缀（600519.SH）、带前缀（SH600519、sh600519）
// 以及东财 secid（1.600519、116.00700）。不含数字的输入直接返回 InvalidSymbolError，
// 名称类输入由数据源通过 Search 解析。
func Normalize(input string, backend Backend) (Symbol, error) {
	if !validBackend(backend) {
		return Symbol{}, apperr.NewInvalidSymbolError(input, "unknown backend "+string(backend))
	}

	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return Symbol{}, apperr.NewInvalidSymbolError(input, "empty input")
	}
	if !hasDigit(s) {
		return Symbol{}, apperr.NewInvalidSymbolError(input, "no digits")
	}

	exchange, code, explicit, err := split(s)
	if err != nil {
		return Symbol{}, apperr.NewInvalidSymbolError(input, err.Error())
	}

	var kind Kind
	if explicit {
		kind = kindOf(exchange, code)
	} else {
		switch len(code) {
		case 5:
			exchange, kind = ExchangeHK, KindStock
		case 6:
			if rule, ok := lookup(code, ExchangeUnknown); ok {
				exchange, kind = rule.exchange, rule.kind
			} else {
				exchange, kind = ExchangeUnknown, KindStock
			}
		}
	}

	return Symbol{
		Raw:       input,
		Exchange:  exchange,
		Code:      code,
		Kind:      kind,
		Canonical: render(exchange, code, backend),
		Backend:   backend,
	}, nil
}

// LooksLikeName 判断输入是否像证券名称（不含任何数字）
func LooksLikeName(input string) bool {
	s := strings.TrimSpace(input)
	return s != "" && !hasDigit(s)
}

type formatError string

func (e formatError) Error() string { return string(e) }

// split 拆出交易所与代码，explicit 表示交易所由输入显式给出
func split(s string) (Exchange, string, bool, error) {
	// 东财 secid
	if market, code, ok := strings.Cut(s, "."); ok && isDigits(market) && isDigits(code) {
		switch market {
		case "1":
			return mainland(ExchangeSH, code)
		case "0":
			if rule, ok := lookup(code, ExchangeBJ); ok && len(code) == 6 {
				return mainland(rule.exchange, code)
			}
			return mainland(ExchangeSZ, code)
		case "116":
			return hongKong(code)
		default:
			return "", "", false, formatError("unknown secid market " + market)
		}
	}

	// 后缀形式 600519.SH
	if code, suffix, ok := strings.Cut(s, "."); ok {
		return withExchange(Exchange(suffix), code)
	}

	// 前缀形式 SH600519
	if len(s) > 2 && isLetters(s[:2]) {
		return withExchange(Exchange(s[:2]), s[2:])
	}

	if !isDigits(s) {
		return "", "", false, formatError("unrecognized format")
	}
	if len(s) != 5 && len(s) != 6 {
		return "", "", false, formatError("expected 5 or 6 digits")
	}
	return ExchangeUnknown, s, false, nil
}

func withExchange(exchange Exchange, code string) (Exchange, string, bool, error) {
	if !isDigits(code) {
		return "", "", false, formatError("code must be digits")
	}
	switch exchange {
	case ExchangeSH, ExchangeSZ, ExchangeBJ:
		return mainland(exchange, code)
	case ExchangeHK:
		return hongKong(code)
	default:
		return "", "", false, formatError("unknown exchange " + string(exchange))
	}
}

// mainland 校验显式交易所与前缀表一致
//
// 东财 secid 的 0 市场同时承载深市与北交所，北交所代码必须落在前缀表内才能区分。
func mainland(exchange Exchange, code string) (Exchange, string, bool, error) {
	if len(code) != 6 {
		return "", "", false, formatError("mainland code must have 6 digits")
	}
	rule, ok := lookup(code, ExchangeUnknown)
	switch {
	case ok && rule.exchange != exchange && !shIndex(exchange, code):
		return "", "", false, formatError("code " + code + " is listed on " + string(rule.exchange) + ", not " + string(exchange))
	case !ok && exchange == ExchangeBJ:
		return "", "", false, formatError("unknown beijing code " + code)
	}
	return exchange, code, true, nil
}

// shIndex 上交所 000 开头的指数与深市主板代码重叠
func shIndex(exchange Exchange, code string) bool {
	return exchange == ExchangeSH && strings.HasPrefix(code, "000")
}

func hongKong(code string) (Exchange, string, bool, error) {
	if len(code) != 5 {
		return "", "", false, formatError("hong kong code must have 5 digits")
	}
	return ExchangeHK, code, true, nil
}

func render(exchange Exchange, code string, backend Backend) string {
	if exchange == ExchangeUnknown {
		return code
	}

	switch backend {
	case BackendEastmoney:
		switch exchange {
		case ExchangeSH:
			return "1." + code
		case ExchangeHK:
			return "116." + code
		default:
			return "0." + code
		}
	case BackendXueqiu:
		if exchange == ExchangeHK {
			return code
		}
		return string(exchange) + code
	case BackendSina:
		return strings.ToLower(string(exchange)) + code
	case BackendDatacenter:
		return code + "." + string(exchange)
	}
	return code
}

func validBackend(b Backend) bool {
	switch b {
	case BackendEastmoney, BackendXueqiu, BackendSina, BackendDatacenter:
		return true
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
