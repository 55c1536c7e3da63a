package discovery

import (
	"fmt"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates TXT records for info.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := make(TXTRecordMap)

	version := info.Version
	if version == "" {
		version = ProtocolVersion
	}
	txt[TXTKeyVersion] = version

	if info.BasePath != "" {
		txt[TXTKeyPath] = info.BasePath
	}
	if info.HubPath != "" {
		txt[TXTKeyHub] = info.HubPath
	}
	if len(info.Codecs) > 0 {
		txt[TXTKeyCodecs] = strings.Join(info.Codecs, ",")
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeTXT parses TXT records into an Info. Name and Port are not part of
// the TXT data and stay empty.
func DecodeTXT(txt TXTRecordMap) (*Info, error) {
	info := &Info{
		BasePath: "/",
		HubPath:  "/hub",
	}

	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok || info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	if p, ok := txt[TXTKeyPath]; ok {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("%w: %s must start with /", ErrInvalidTXTRecord, TXTKeyPath)
		}
		info.BasePath = p
	}
	if h, ok := txt[TXTKeyHub]; ok {
		if !strings.HasPrefix(h, "/") {
			return nil, fmt.Errorf("%w: %s must start with /", ErrInvalidTXTRecord, TXTKeyHub)
		}
		info.HubPath = h
	}
	if c, ok := txt[TXTKeyCodecs]; ok && c != "" {
		for _, codec := range strings.Split(c, ",") {
			if codec = strings.TrimSpace(codec); codec != "" {
				info.Codecs = append(info.Codecs, codec)
			}
		}
	}
	switch txt[TXTKeyTLS] {
	case "", "0":
	case "1":
		info.TLS = true
	default:
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyTLS, txt[TXTKeyTLS])
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return ErrEmptyInstanceName
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
