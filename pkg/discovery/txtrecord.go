package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records of an endpoint.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyDevice:   info.Device,
		TXTKeyProtocol: info.Protocol,
	}
	if info.Setup != "" {
		txt[TXTKeySetup] = info.Setup
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt
}

// DecodeTXT parses the TXT records of an endpoint. The port is not part of
// the records and left zero.
func DecodeTXT(txt TXTRecordMap) (*ServiceInfo, error) {
	info := &ServiceInfo{}

	var ok bool
	if info.Device, ok = txt[TXTKeyDevice]; !ok || info.Device == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDevice)
	}
	if info.Protocol, ok = txt[TXTKeyProtocol]; !ok || info.Protocol == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocol)
	}
	info.Setup = txt[TXTKeySetup]
	info.Version = txt[TXTKeyVersion]
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			v = ""
		}
		txt[k] = v
	}
	return txt
}

// Validate checks that info can be advertised.
func (i *ServiceInfo) Validate() error {
	if i.Device == "" || i.Protocol == "" {
		return fmt.Errorf("%w: device and protocol are required", ErrInvalidName)
	}
	if strings.ContainsAny(i.Device+i.Protocol, ".\\") {
		return fmt.Errorf("%w: %q", ErrInvalidName, i.InstanceName())
	}
	if i.Port <= 0 || i.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, i.Port)
	}
	return nil
}
