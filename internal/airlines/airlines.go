// Package airlines maps ICAO airline designators to display names.
package airlines

import "strings"

// names holds the carriers most often seen on the board. Unknown codes
// are shown without a name.
var names = map[string]string{
	"AAL": "American Airlines",
	"ACA": "Air Canada",
	"AFR": "Air France",
	"AIC": "Air India",
	"ANA": "All Nippon Airways",
	"ASA": "Alaska Airlines",
	"AUA": "Austrian Airlines",
	"AZA": "ITA Airways",
	"BAW": "British Airways",
	"BEL": "Brussels Airlines",
	"CCA": "Air China",
	"CFG": "Condor",
	"CPA": "Cathay Pacific",
	"CSN": "China Southern",
	"DAL": "Delta Air Lines",
	"DLH": "Lufthansa",
	"EIN": "Aer Lingus",
	"EJU": "easyJet Europe",
	"ETD": "Etihad Airways",
	"EWG": "Eurowings",
	"EZY": "easyJet",
	"FDX": "FedEx",
	"FIN": "Finnair",
	"IBE": "Iberia",
	"JAL": "Japan Airlines",
	"JBU": "JetBlue",
	"KLM": "KLM",
	"LOT": "LOT Polish Airlines",
	"NAX": "Norwegian",
	"QFA": "Qantas",
	"QTR": "Qatar Airways",
	"RYR": "Ryanair",
	"SAS": "Scandinavian Airlines",
	"SIA": "Singapore Airlines",
	"SKW": "SkyWest",
	"SWA": "Southwest Airlines",
	"SWR": "Swiss",
	"TAP": "TAP Air Portugal",
	"THY": "Turkish Airlines",
	"UAE": "Emirates",
	"UAL": "United Airlines",
	"UPS": "UPS Airlines",
	"VIR": "Virgin Atlantic",
	"VLG": "Vueling",
	"WZZ": "Wizz Air",
}

// Code returns the airline designator of a callsign: its leading letters,
// at most three. General aviation registrations yield short or empty codes.
func Code(callsign string) string {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	n := 0
	for n < len(callsign) && n < 3 && callsign[n] >= 'A' && callsign[n] <= 'Z' {
		n++
	}
	return callsign[:n]
}

// Name returns the airline name for an ICAO designator, or "".
func Name(code string) string {
	return names[strings.ToUpper(code)]
}
