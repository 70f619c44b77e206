package networking

import (
	"fmt"

	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/log"
)

// FindUplink returns the uplink interface. A missing uplink is fatal: no
// identity can be created without it.
func FindUplink(h Handle, name string) (*Interface, error) {
	uplink, err := GetInterface(h, name)
	if err != nil {
		if IsLinkNotFound(err) {
			log.Errorf("Uplink interface '%s' does not exist", name)
			PrintMissingUplinkHelp()
			return nil, errors.NewFatalError(fmt.Sprintf("uplink %s is missing", name), err)
		}
		return nil, errors.NewNetworkError(fmt.Sprintf("failed to look up uplink %s", name), err)
	}
	return uplink, nil
}

// FatalIfPermission turns a permission error into a fatal error, and returns
// every other error unchanged.
func FatalIfPermission(err error, action string) error {
	if err != nil && IsPermissionError(err) {
		return errors.NewFatalError(fmt.Sprintf("insufficient privilege to %s", action), err)
	}
	return err
}

func PrintMissingUplinkHelp() {
	log.Warnf("(tip) Check [pool].uplink in the configuration; `ip -br link` lists the available interfaces")
}
