// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package kismet

import "strings"

// ouiTable maps the first three octets of a MAC (lowercase, colon
// separated) to a manufacturer. This is a deliberately small static table
// covering vendors that show up constantly in residential captures; the
// Kismet blob manufacturer is always preferred when present.
var ouiTable = map[string]string{
	"00:03:93": "Apple",
	"00:17:f2": "Apple",
	"00:1c:b3": "Apple",
	"3c:22:fb": "Apple",
	"a4:83:e7": "Apple",
	"f0:18:98": "Apple",
	"00:12:fb": "Samsung",
	"00:21:19": "Samsung",
	"8c:77:12": "Samsung",
	"e8:50:8b": "Samsung",
	"00:1a:11": "Google",
	"54:60:09": "Google",
	"f4:f5:d8": "Google",
	"00:fc:8b": "Amazon",
	"44:65:0d": "Amazon",
	"fc:65:de": "Amazon",
	"00:0c:e7": "MediaTek",
	"00:1e:42": "Teltonika",
	"00:24:e4": "Withings",
	"18:b4:30": "Nest Labs",
	"64:16:66": "Nest Labs",
	"00:0d:4b": "Roku",
	"b0:a7:37": "Roku",
	"00:04:f2": "Polycom",
	"00:01:42": "Cisco",
	"00:40:96": "Cisco",
	"58:97:1e": "Cisco",
	"00:09:5b": "Netgear",
	"a0:40:a0": "Netgear",
	"00:14:bf": "Linksys",
	"48:f8:b3": "Linksys",
	"00:18:e7": "TP-Link",
	"50:c7:bf": "TP-Link",
	"ec:08:6b": "TP-Link",
	"00:15:6d": "Ubiquiti",
	"f0:9f:c2": "Ubiquiti",
	"b4:fb:e4": "Ubiquiti",
	"00:11:32": "Synology",
	"00:1d:c9": "GainSpan",
	"24:0a:c4": "Espressif",
	"30:ae:a4": "Espressif",
	"84:cc:a8": "Espressif",
	"b8:27:eb": "Raspberry Pi",
	"dc:a6:32": "Raspberry Pi",
	"e4:5f:01": "Raspberry Pi",
	"00:50:f2": "Microsoft",
	"28:18:78": "Microsoft",
	"00:24:9f": "RIM",
	"34:af:b3": "Fitbit",
	"00:26:e8": "Murata",
	"44:07:0b": "Google Fiber",
	"00:71:47": "Amazon Technologies",
	"74:c2:46": "Amazon Technologies",
	"cc:f4:11": "Google Home",
}

// LookupOUI resolves a manufacturer from the MAC's OUI prefix. Returns ""
// for unknown prefixes or malformed MACs.
func LookupOUI(mac string) string {
	if len(mac) < 8 {
		return ""
	}
	return ouiTable[strings.ToLower(mac[:8])]
}
