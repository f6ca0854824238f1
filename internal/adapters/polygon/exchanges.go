package polygon

import "fmt"

// optionsExchanges maps provider exchange IDs for the options feed to
// human-readable venue names.
var optionsExchanges = map[int]string{
	300: "OPRA",
	301: "BOX",
	302: "CBOE",
	303: "C2",
	304: "EDGX Options",
	305: "ISE Gemini",
	306: "ISE",
	307: "ISE Mercury",
	308: "MIAX",
	309: "NYSE American",
	310: "NYSE Arca",
	311: "Nasdaq Options Market",
	312: "PHLX",
	313: "Nasdaq BX Options",
	314: "MIAX Pearl",
	315: "MIAX Emerald",
	316: "BZX Options",
	317: "MEMX Options",
}

// ExchangeName resolves a feed exchange ID to a display name
func ExchangeName(code int) string {
	if name, ok := optionsExchanges[code]; ok {
		return name
	}
	return fmt.Sprintf("EXCHANGE-%d", code)
}
