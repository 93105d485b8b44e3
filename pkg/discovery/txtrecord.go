package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates the TXT records a server announces.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	if info.Path != "" {
		txt[TXTKeyPath] = info.Path
	}
	if info.Auth != "" {
		txt[TXTKeyAuth] = string(info.Auth)
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	if info.Codec != "" {
		txt[TXTKeyCodec] = info.Codec
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}

	return txt
}

// DecodeServerTXT parses the TXT records of a server. Every key is
// optional; unknown keys are ignored.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{Path: "/", Auth: transport.AuthNone}

	if p, ok := txt[TXTKeyPath]; ok && p != "" {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("%w: path %q must start with /", ErrInvalidTXTRecord, p)
		}
		info.Path = p
	}

	if a, ok := txt[TXTKeyAuth]; ok {
		auth, err := transport.ParseAuthStrategy(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
		info.Auth = auth
	}

	switch strings.ToLower(txt[TXTKeyTLS]) {
	case "", "0", "false":
	case "1", "true":
		info.TLS = true
	default:
		return nil, fmt.Errorf("%w: tls %q", ErrInvalidTXTRecord, txt[TXTKeyTLS])
	}

	if c, ok := txt[TXTKeyCodec]; ok && c != "" {
		if _, err := wire.CodecByName(c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
		info.Codec = c
	}

	info.Version = txt[TXTKeyVersion]
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
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
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
