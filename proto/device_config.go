package proto

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	CmdGetDeviceName   = "getDeviceName"
	CmdListEEPROM      = "listEEPROMValues"
	CmdEnableStaticIP  = "enableStaticIP"
	CmdDisableStaticIP = "disableStaticIP"

	// ConfigDumpEnd terminates a listEEPROMValues dump.
	ConfigDumpEnd = "End of EEPROM Values"

	// KeepPassword tells the firmware to leave a stored password untouched.
	KeepPassword = "-"

	WifiSlots = 3
)

// SetDeviceName builds setDeviceName:<name>.
func SetDeviceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("device name is required")
	}
	if err := checkField("device name", name); err != nil {
		return "", err
	}
	return "setDeviceName:" + name, nil
}

// ConnectWifi builds connectWifi:<ssid>:<password>:<slot>.
func ConnectWifi(ssid, password string, slot int) (string, error) {
	if strings.TrimSpace(ssid) == "" {
		return "", errors.New("ssid is required")
	}
	if slot < 0 || slot >= WifiSlots {
		return "", fmt.Errorf("wifi slot %d out of range [0,%d]", slot, WifiSlots-1)
	}
	if err := checkField("ssid", ssid); err != nil {
		return "", err
	}
	if strings.ContainsAny(password, "\r\n") {
		return "", errors.New("password must be a single line")
	}
	return fmt.Sprintf("connectWifi:%s:%s:%d", ssid, password, slot), nil
}

// StaticIP is the address block sent with configureStaticIP.
type StaticIP struct {
	IP      string `json:"ip"`
	Gateway string `json:"gateway"`
	Subnet  string `json:"subnet"`
	DNS1    string `json:"dns1"`
	DNS2    string `json:"dns2"`
}

func DefaultStaticIP(ip string) StaticIP {
	return StaticIP{IP: ip, Gateway: "192.168.4.1", Subnet: "255.255.255.0", DNS1: "8.8.8.8", DNS2: "8.8.4.4"}
}

func (s StaticIP) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"ip", s.IP}, {"gateway", s.Gateway}, {"subnet", s.Subnet}, {"dns1", s.DNS1}, {"dns2", s.DNS2},
	} {
		if ip := net.ParseIP(f.value); ip == nil || ip.To4() == nil {
			return fmt.Errorf("%s %q is not an IPv4 address", f.name, f.value)
		}
	}
	return nil
}

// ConfigureStaticIP builds configureStaticIP:<ip>:<gw>:<subnet>:<dns1>:<dns2>.
func ConfigureStaticIP(s StaticIP) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	return strings.Join([]string{"configureStaticIP", s.IP, s.Gateway, s.Subnet, s.DNS1, s.DNS2}, ":"), nil
}

// ConfigureSoundMQTTServer builds configureSoundMQTTServer:<url>:<port>:<user>:<pass>.
// An empty password is sent as KeepPassword.
func ConfigureSoundMQTTServer(url string, port int, user, password string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("mqtt url is required")
	}
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("mqtt port %d out of range", port)
	}
	for _, f := range []struct{ name, value string }{{"mqtt url", url}, {"mqtt user", user}, {"mqtt password", password}} {
		if err := checkField(f.name, f.value); err != nil {
			return "", err
		}
	}
	if password == "" {
		password = KeepPassword
	}
	return fmt.Sprintf("configureSoundMQTTServer:%s:%s:%s:%s", url, strconv.Itoa(port), user, password), nil
}

// checkField rejects values that would break the colon separated framing.
func checkField(name, value string) error {
	if strings.ContainsAny(value, ":\r\n") {
		return fmt.Errorf("%s must not contain ':' or line breaks", name)
	}
	return nil
}
