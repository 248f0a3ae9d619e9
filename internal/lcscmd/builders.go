// Package lcscmd provides typed constructors that turn lighting intents
// (dim a lamp, run a scene, read a color temperature, ...) into encoded LCS
// frames. Every builder validates its arguments before encoding and fails
// with *InvalidArgumentError on an out-of-range value.
package lcscmd

import "github.com/ampiolux/lcs-gateway/internal/lcsframe"

const (
	opGetBrightness   = 0x96
	opGetColorTemp    = 0x06
	opDimLamp         = 0x92
	opBlockControl    = 0x90
	opBlockColorTemp  = 0x05
	opExecuteScene    = 0x91
	opAllLamps        = 0x02
	opGetDeviceName   = 0xA2
	opGetDeviceNameOP = 0x05
)

func validMaster(v int) error  { return checkRange("master", v, 1, 255) }
func validCU(v int) error      { return checkRange("cu", v, 1, 255) }
func validLampNo(v int) error  { return checkRange("lampNo", v, 1, 64) }
func validBright(v int) error  { return checkRange("brightness", v, 0, 100) }
func validByteArg(f string, v int) error {
	return checkRange(f, v, 0, 255)
}

// GetLampBrightness reads the current brightness of every lamp slot known to
// the addressed device. devType selects the bus device class.
func GetLampBrightness(devType lcsframe.DeviceType, master, cu int) ([]byte, error) {
	if !devType.Valid() {
		return nil, &InvalidArgumentError{Field: "deviceType", Value: int(devType)}
	}
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	dest := lcsframe.Addr{DeviceType: devType, Master: byte(master), CU: byte(cu)}
	return lcsframe.Encode(dest, opGetBrightness, 0x00, nil), nil
}

// GetColorTemperature reads the current color temperature of an LCS device.
func GetColorTemperature(master, cu int) ([]byte, error) {
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: byte(master), CU: byte(cu)}
	return lcsframe.Encode(dest, opGetBrightness, opGetColorTemp, nil), nil
}

// DimLamp sets the brightness of a single lamp.
func DimLamp(master, cu, lampNo, brightness int) ([]byte, error) {
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	if err := validLampNo(lampNo); err != nil {
		return nil, err
	}
	if err := validBright(brightness); err != nil {
		return nil, err
	}
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: byte(master), CU: byte(cu)}
	data := []byte{byte(cu), byte(lampNo), 0x00, byte(brightness)}
	return lcsframe.Encode(dest, opDimLamp, 0x00, data), nil
}

// BlockLampControl sets the same brightness across a list of lamps in one
// command.
func BlockLampControl(master, cu int, lamps []int, brightness int) ([]byte, error) {
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	if err := validBright(brightness); err != nil {
		return nil, err
	}
	if err := checkRange("lampCount", len(lamps), 1, 64); err != nil {
		return nil, err
	}
	data := make([]byte, 0, 2+len(lamps)+1)
	data = append(data, byte(cu), byte(len(lamps)))
	for _, l := range lamps {
		if err := validLampNo(l); err != nil {
			return nil, err
		}
		data = append(data, byte(l))
	}
	data = append(data, byte(brightness))
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: byte(master), CU: byte(cu)}
	return lcsframe.Encode(dest, opBlockControl, 0x00, data), nil
}

// BlockColorTemp sets the same color temperature across a list of lamps.
func BlockColorTemp(master, cu int, lamps []int, colorTemp int) ([]byte, error) {
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	if err := validByteArg("colorTemp", colorTemp); err != nil {
		return nil, err
	}
	if err := checkRange("lampCount", len(lamps), 1, 64); err != nil {
		return nil, err
	}
	data := make([]byte, 0, 2+len(lamps)+1)
	data = append(data, byte(cu), byte(len(lamps)))
	for _, l := range lamps {
		if err := validLampNo(l); err != nil {
			return nil, err
		}
		data = append(data, byte(l))
	}
	data = append(data, byte(colorTemp))
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: byte(master), CU: byte(cu)}
	return lcsframe.Encode(dest, opBlockControl, opBlockColorTemp, data), nil
}

// ExecuteScene triggers a preset scene, optionally faded in over fadeTime.
func ExecuteScene(master, cu, sceneNo, fadeTime int) ([]byte, error) {
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	if err := validByteArg("sceneNo", sceneNo); err != nil {
		return nil, err
	}
	if err := validByteArg("fadeTime", fadeTime); err != nil {
		return nil, err
	}
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: byte(master), CU: byte(cu)}
	data := []byte{byte(cu), byte(sceneNo), byte(fadeTime)}
	return lcsframe.Encode(dest, opExecuteScene, 0x00, data), nil
}

// AllLamps sets every lamp on a control unit to the same brightness.
func AllLamps(master, cu, brightness int) ([]byte, error) {
	if err := validMaster(master); err != nil {
		return nil, err
	}
	if err := validCU(cu); err != nil {
		return nil, err
	}
	if err := validBright(brightness); err != nil {
		return nil, err
	}
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: byte(master), CU: byte(cu)}
	data := []byte{byte(cu), byte(brightness)}
	return lcsframe.Encode(dest, opBlockControl, opAllLamps, data), nil
}

// GetDeviceName broadcasts a device-name query (master=cu=0).
func GetDeviceName() ([]byte, error) {
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 0, CU: 0}
	return lcsframe.Encode(dest, opGetDeviceName, opGetDeviceNameOP, nil), nil
}
