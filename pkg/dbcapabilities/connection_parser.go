package dbcapabilities

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionDetails holds parsed connection information
type ConnectionDetails struct {
	DatabaseType DatabaseID        `json:"database_type"`
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	Username     string            `json:"username"`
	Password     string            `json:"password"`
	DatabaseName string            `json:"database_name"`
	Parameters   map[string]string `json:"parameters"`
	IsSystemDB   bool              `json:"is_system_db"`
}

// Address returns host:port
func (d *ConnectionDetails) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// keyword aliases accepted in keyword-style connection strings
var keywordAliases = map[string]string{
	"host":            "host",
	"server":          "host",
	"data source":     "host",
	"port":            "port",
	"username":        "username",
	"user name":       "username",
	"user id":         "username",
	"userid":          "username",
	"user":            "username",
	"uid":             "username",
	"password":        "password",
	"pwd":             "password",
	"database":        "database",
	"db":              "database",
	"initial catalog": "database",
	"schema":          "database",
}

// ParseConnectionString parses a keyword-style or URI-style connection string
// for the given database and fills defaults from its capability.
func ParseConnectionString(id DatabaseID, connectionString string) (*ConnectionDetails, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}

	capability, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", id)
	}

	var (
		details *ConnectionDetails
		err     error
	)
	if strings.Contains(connectionString, "://") {
		details, err = parseURI(connectionString)
	} else {
		details, err = parseKeywords(connectionString)
	}
	if err != nil {
		return nil, err
	}
	details.DatabaseType = id

	if details.Host == "" {
		return nil, fmt.Errorf("host is required in connection string")
	}
	if details.Port == 0 {
		details.Port = capability.DefaultPort
	}
	if details.Username == "" {
		details.Username = capability.DefaultUser
	}

	if sys := capability.SystemDatabase(); sys != "" {
		if details.DatabaseName == "" {
			details.DatabaseName = sys
		}
		details.IsSystemDB = isSystemDatabase(details.DatabaseName, capability.SystemDatabases)
	}

	return details, nil
}

func parseURI(connectionString string) (*ConnectionDetails, error) {
	parsedURL, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string format: %v", err)
	}

	details := &ConnectionDetails{
		Host:       parsedURL.Hostname(),
		Parameters: make(map[string]string),
	}

	if p := parsedURL.Port(); p != "" {
		port, err := parsePort(p)
		if err != nil {
			return nil, err
		}
		details.Port = port
	}

	if parsedURL.User != nil {
		details.Username = parsedURL.User.Username()
		if password, hasPassword := parsedURL.User.Password(); hasPassword {
			details.Password = password
		}
	}

	details.DatabaseName = strings.Trim(parsedURL.Path, "/")

	for key, values := range parsedURL.Query() {
		if len(values) > 0 {
			details.Parameters[key] = values[0]
		}
	}
	return details, nil
}

func parseKeywords(connectionString string) (*ConnectionDetails, error) {
	details := &ConnectionDetails{Parameters: make(map[string]string)}

	pairs, err := splitKeywordPairs(connectionString)
	if err != nil {
		return nil, err
	}

	for _, kv := range pairs {
		key := strings.ToLower(kv[0])
		value := kv[1]

		switch keywordAliases[key] {
		case "host":
			// Server=h:p shorthand
			if h, p, err := net.SplitHostPort(value); err == nil {
				port, err := parsePort(p)
				if err != nil {
					return nil, err
				}
				details.Host = h
				details.Port = port
			} else {
				details.Host = value
			}
		case "port":
			port, err := parsePort(value)
			if err != nil {
				return nil, err
			}
			details.Port = port
		case "username":
			details.Username = value
		case "password":
			details.Password = value
		case "database":
			details.DatabaseName = value
		default:
			details.Parameters[kv[0]] = value
		}
	}
	return details, nil
}

// splitKeywordPairs splits "k=v;k2='v;2'" honouring single or double quoted
// values, where a doubled quote inside a quoted value is a literal quote.
func splitKeywordPairs(s string) ([][2]string, error) {
	var pairs [][2]string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ';' || s[i] == ' ') {
			i++
		}
		if i >= len(s) {
			break
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, fmt.Errorf("invalid connection string segment %q: missing '='", s[i:])
		}
		key := strings.TrimSpace(s[i : i+eq])
		if key == "" {
			return nil, fmt.Errorf("invalid connection string: empty keyword")
		}
		i += eq + 1
		for i < len(s) && s[i] == ' ' {
			i++
		}

		var value strings.Builder
		if i < len(s) && (s[i] == '"' || s[i] == '\'') {
			quote := s[i]
			i++
			closed := false
			for i < len(s) {
				if s[i] == quote {
					if i+1 < len(s) && s[i+1] == quote {
						value.WriteByte(quote)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				value.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("invalid connection string: unterminated quote for %s", key)
			}
		} else {
			end := strings.IndexByte(s[i:], ';')
			if end < 0 {
				end = len(s) - i
			}
			value.WriteString(strings.TrimSpace(s[i : i+end]))
			i += end
		}
		pairs = append(pairs, [2]string{key, value.String()})
	}
	return pairs, nil
}

func parsePort(p string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(p))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %s", p)
	}
	return port, nil
}

// isSystemDatabase checks if the given database name is a system database
func isSystemDatabase(dbName string, systemDatabases []string) bool {
	for _, sysDB := range systemDatabases {
		if strings.EqualFold(dbName, sysDB) {
			return true
		}
	}
	return false
}

// QuoteKeywordValue quotes a keyword-style value when it contains separators.
func QuoteKeywordValue(v string) string {
	if !strings.ContainsAny(v, ";'\" ") {
		return v
	}
	return "\"" + strings.ReplaceAll(v, "\"", "\"\"") + "\""
}

// ValidateConnectionString validates a connection string without using it
func ValidateConnectionString(id DatabaseID, connectionString string) error {
	_, err := ParseConnectionString(id, connectionString)
	return err
}
