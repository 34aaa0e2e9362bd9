// correlation.go implements sector and correlation-group exposure limits.
//
// The manager keeps a symbol→sector table and a set of named correlation
// groups (symbols that tend to move together). Exposure along each axis is
// Σ |market_value| divided by account equity. CheckPosition gates a proposed
// increase; MaxPositionSize returns the most restrictive remaining headroom
// in dollars, zero when any axis is saturated or equity is not positive.
package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

// Sector classifies a symbol for exposure aggregation.
type Sector string

const (
	SectorTechnology        Sector = "technology"
	SectorHealthcare        Sector = "healthcare"
	SectorFinancial         Sector = "financial"
	SectorConsumerCyclical  Sector = "consumer_cyclical"
	SectorConsumerDefensive Sector = "consumer_defensive"
	SectorEnergy            Sector = "energy"
	SectorIndustrials       Sector = "industrials"
	SectorUtilities         Sector = "utilities"
	SectorRealEstate        Sector = "real_estate"
	SectorCommunication     Sector = "communication"
	SectorCrypto            Sector = "crypto"
	SectorUnknown           Sector = "unknown"
)

// symbolSectors maps common symbols to their sector. Symbols not listed are
// UNKNOWN and get the tighter unknown-sector limit.
var symbolSectors = map[string]Sector{
	// Technology
	"AAPL": SectorTechnology, "MSFT": SectorTechnology, "GOOGL": SectorTechnology,
	"GOOG": SectorTechnology, "META": SectorTechnology, "NVDA": SectorTechnology,
	"AMD": SectorTechnology, "INTC": SectorTechnology, "CRM": SectorTechnology,
	"ORCL": SectorTechnology, "ADBE": SectorTechnology, "CSCO": SectorTechnology,
	"AVGO": SectorTechnology, "TSM": SectorTechnology, "ASML": SectorTechnology,

	// Healthcare
	"JNJ": SectorHealthcare, "UNH": SectorHealthcare, "PFE": SectorHealthcare,
	"ABBV": SectorHealthcare, "MRK": SectorHealthcare, "LLY": SectorHealthcare,
	"TMO": SectorHealthcare, "ABT": SectorHealthcare,

	// Financial
	"JPM": SectorFinancial, "BAC": SectorFinancial, "WFC": SectorFinancial,
	"GS": SectorFinancial, "MS": SectorFinancial, "C": SectorFinancial,
	"BLK": SectorFinancial, "SCHW": SectorFinancial, "V": SectorFinancial,
	"MA": SectorFinancial, "AXP": SectorFinancial,

	// Consumer cyclical
	"AMZN": SectorConsumerCyclical, "TSLA": SectorConsumerCyclical,
	"HD": SectorConsumerCyclical, "NKE": SectorConsumerCyclical,
	"MCD": SectorConsumerCyclical, "SBUX": SectorConsumerCyclical,
	"TGT": SectorConsumerCyclical, "LOW": SectorConsumerCyclical,

	// Consumer defensive
	"WMT": SectorConsumerDefensive, "PG": SectorConsumerDefensive,
	"KO": SectorConsumerDefensive, "PEP": SectorConsumerDefensive,
	"COST": SectorConsumerDefensive, "PM": SectorConsumerDefensive,

	// Energy
	"XOM": SectorEnergy, "CVX": SectorEnergy, "COP": SectorEnergy,
	"SLB": SectorEnergy, "EOG": SectorEnergy, "OXY": SectorEnergy,

	// Communication
	"NFLX": SectorCommunication, "DIS": SectorCommunication,
	"CMCSA": SectorCommunication, "T": SectorCommunication,
	"VZ": SectorCommunication, "TMUS": SectorCommunication,

	// Industrials
	"BA": SectorIndustrials, "CAT": SectorIndustrials, "HON": SectorIndustrials,
	"UNP": SectorIndustrials, "UPS": SectorIndustrials, "RTX": SectorIndustrials,
	"GE": SectorIndustrials, "LMT": SectorIndustrials,

	// Utilities
	"NEE": SectorUtilities, "DUK": SectorUtilities, "SO": SectorUtilities,
	"D": SectorUtilities,

	// Real estate
	"AMT": SectorRealEstate, "PLD": SectorRealEstate, "CCI": SectorRealEstate,
	"EQIX": SectorRealEstate, "SPG": SectorRealEstate,

	// Sector ETFs (broad market SPY stays unknown)
	"QQQ": SectorTechnology, "XLK": SectorTechnology, "XLF": SectorFinancial,
	"XLE": SectorEnergy, "XLV": SectorHealthcare, "XLI": SectorIndustrials,
	"XLP": SectorConsumerDefensive, "XLY": SectorConsumerCyclical,
	"XLU": SectorUtilities, "XLRE": SectorRealEstate, "XLC": SectorCommunication,

	// Crypto-exposed
	"COIN": SectorCrypto, "MSTR": SectorCrypto, "RIOT": SectorCrypto,
	"MARA": SectorCrypto,
}

// correlationGroups names sets of symbols that tend to move together.
var correlationGroups = map[string][]string{
	"magnificent_7":  {"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "META", "NVDA", "TSLA"},
	"semiconductors": {"NVDA", "AMD", "INTC", "TSM", "ASML", "AVGO", "MU", "QCOM"},
	"faang":          {"META", "AAPL", "AMZN", "NFLX", "GOOGL", "GOOG"},
	"banks":          {"JPM", "BAC", "WFC", "C", "GS", "MS"},
	"oil_majors":     {"XOM", "CVX", "COP", "BP", "SHEL"},
	"pharma":         {"PFE", "JNJ", "MRK", "ABBV", "LLY"},
	"ev_battery":     {"TSLA", "RIVN", "LCID", "NIO", "F", "GM"},
	"cloud":          {"AMZN", "MSFT", "GOOGL", "CRM", "SNOW", "NET"},
	"streaming":      {"NFLX", "DIS", "WBD", "PARA", "CMCSA"},
	"crypto_exposed": {"COIN", "MSTR", "RIOT", "MARA", "SQ"},
	"ai_plays":       {"NVDA", "MSFT", "GOOGL", "AMD", "META", "CRM", "PLTR"},
}

// ExposureCheck is the result of gating one proposed position increase.
type ExposureCheck struct {
	Allowed  bool
	Reason   string
	Warnings []string
}

// CorrelationManager enforces sector/group/single-name exposure ceilings.
type CorrelationManager struct {
	maxSingleStock decimal.Decimal
	maxSector      decimal.Decimal
	maxUnknown     decimal.Decimal
	maxGroup       decimal.Decimal
	maxPerSector   int

	sectors map[string]Sector
	groups  map[string]map[string]bool
}

// NewCorrelationManager builds a manager with the built-in sector/group
// tables and limits from config.
func NewCorrelationManager(cfg config.CorrelationConfig) *CorrelationManager {
	groups := make(map[string]map[string]bool, len(correlationGroups))
	for name, symbols := range correlationGroups {
		set := make(map[string]bool, len(symbols))
		for _, s := range symbols {
			set[s] = true
		}
		groups[name] = set
	}

	return &CorrelationManager{
		maxSingleStock: decimal.NewFromFloat(cfg.MaxSingleStockPct),
		maxSector:      decimal.NewFromFloat(cfg.MaxSectorExposurePct),
		maxUnknown:     decimal.NewFromFloat(cfg.MaxUnknownSectorPct),
		maxGroup:       decimal.NewFromFloat(cfg.MaxGroupExposurePct),
		maxPerSector:   cfg.MaxPositionsPerSector,
		sectors:        symbolSectors,
		groups:         groups,
	}
}

// SectorOf returns the sector for a symbol, UNKNOWN when unmapped.
func (m *CorrelationManager) SectorOf(symbol string) Sector {
	if s, ok := m.sectors[strings.ToUpper(symbol)]; ok {
		return s
	}
	return SectorUnknown
}

// GroupsOf returns the correlation groups a symbol belongs to.
func (m *CorrelationManager) GroupsOf(symbol string) []string {
	sym := strings.ToUpper(symbol)
	var out []string
	for name, set := range m.groups {
		if set[sym] {
			out = append(out, name)
		}
	}
	return out
}

func (m *CorrelationManager) sectorLimit(sector Sector) decimal.Decimal {
	if sector == SectorUnknown {
		return m.maxUnknown
	}
	return m.maxSector
}

// exposure aggregates |market_value| along each axis for the given symbol.
type exposure struct {
	single      decimal.Decimal
	sector      decimal.Decimal
	sectorCount int
	groups      map[string]decimal.Decimal
	hasPosition bool
}

func (m *CorrelationManager) exposureFor(symbol string, positions []types.Position) exposure {
	sym := strings.ToUpper(symbol)
	sector := m.SectorOf(sym)
	targetGroups := m.GroupsOf(sym)

	exp := exposure{groups: make(map[string]decimal.Decimal, len(targetGroups))}
	for _, g := range targetGroups {
		exp.groups[g] = decimal.Zero
	}

	for _, p := range positions {
		mv := p.AbsMarketValue()
		psym := strings.ToUpper(p.Symbol)
		if psym == sym {
			exp.single = exp.single.Add(mv)
			exp.hasPosition = true
		}
		if m.SectorOf(psym) == sector {
			exp.sector = exp.sector.Add(mv)
			exp.sectorCount++
		}
		for _, g := range targetGroups {
			if m.groups[g][psym] {
				exp.groups[g] = exp.groups[g].Add(mv)
			}
		}
	}
	return exp
}

// CheckPosition gates a proposed position increase of proposedValue dollars.
func (m *CorrelationManager) CheckPosition(
	symbol string,
	proposedValue decimal.Decimal,
	positions []types.Position,
	equity decimal.Decimal,
) ExposureCheck {
	if equity.Sign() <= 0 {
		return ExposureCheck{Allowed: false, Reason: "account equity is zero or negative"}
	}

	exp := m.exposureFor(symbol, positions)
	sector := m.SectorOf(symbol)
	proposedPct := proposedValue.Div(equity)

	newSingle := exp.single.Div(equity).Add(proposedPct)
	if newSingle.GreaterThan(m.maxSingleStock) {
		return ExposureCheck{Allowed: false, Reason: fmt.Sprintf(
			"single stock limit exceeded: %s > %s",
			newSingle.StringFixed(3), m.maxSingleStock.StringFixed(3))}
	}

	sectorLimit := m.sectorLimit(sector)
	newSector := exp.sector.Div(equity).Add(proposedPct)
	if newSector.GreaterThan(sectorLimit) {
		return ExposureCheck{Allowed: false, Reason: fmt.Sprintf(
			"sector limit exceeded for %s: %s > %s",
			sector, newSector.StringFixed(3), sectorLimit.StringFixed(3))}
	}

	if m.maxPerSector > 0 && !exp.hasPosition && exp.sectorCount >= m.maxPerSector {
		return ExposureCheck{Allowed: false, Reason: fmt.Sprintf(
			"max positions in %s: %d >= %d", sector, exp.sectorCount, m.maxPerSector)}
	}

	var warnings []string
	warnLevel := m.maxGroup.Mul(decimal.NewFromFloat(0.8))
	for group, value := range exp.groups {
		newGroup := value.Div(equity).Add(proposedPct)
		if newGroup.GreaterThan(m.maxGroup) {
			return ExposureCheck{Allowed: false, Reason: fmt.Sprintf(
				"correlation group limit exceeded for %q: %s > %s",
				group, newGroup.StringFixed(3), m.maxGroup.StringFixed(3))}
		}
		if newGroup.GreaterThan(warnLevel) {
			warnings = append(warnings, fmt.Sprintf(
				"approaching %q group limit: %s", group, newGroup.StringFixed(3)))
		}
	}

	return ExposureCheck{Allowed: true, Warnings: warnings}
}

// MaxPositionSize returns the most restrictive remaining headroom in
// dollars for the symbol. Zero when any axis is saturated or equity is not
// positive.
func (m *CorrelationManager) MaxPositionSize(
	symbol string,
	positions []types.Position,
	equity decimal.Decimal,
) decimal.Decimal {
	if equity.Sign() <= 0 {
		return decimal.Zero
	}

	exp := m.exposureFor(symbol, positions)

	headroom := m.maxSingleStock.Mul(equity).Sub(exp.single)

	sectorRoom := m.sectorLimit(m.SectorOf(symbol)).Mul(equity).Sub(exp.sector)
	if sectorRoom.LessThan(headroom) {
		headroom = sectorRoom
	}

	for _, value := range exp.groups {
		groupRoom := m.maxGroup.Mul(equity).Sub(value)
		if groupRoom.LessThan(headroom) {
			headroom = groupRoom
		}
	}

	if headroom.Sign() < 0 {
		return decimal.Zero
	}
	return headroom
}
