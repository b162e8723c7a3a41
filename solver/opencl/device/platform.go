package device

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

const (
	maxPlatforms = 100
	maxDevices   = 100
	infoBufSize  = 1024
)

// PlatformInfo describes an opencl platform and its CPU and GPU devices.
type PlatformInfo struct {
	Profile    string
	Version    string
	Name       string
	Vendor     string
	Extensions string
	Devices    []*Device
}

func (pl PlatformInfo) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Version:    %s\nName:       %s\nVendor:     %s\nExtensions: %s\nDevices:\n",
		pl.Version, pl.Name, pl.Vendor, pl.Extensions,
	)
	for dIdx, d := range pl.Devices {
		fmt.Fprintf(&sb, "  Device %02d:\n", dIdx)
		sb.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// Trim the trailing NUL returned by opencl info queries.
func infoString(data []byte, dataLen uint64) string {
	if dataLen == 0 {
		return ""
	}
	return string(data[0 : dataLen-1])
}

// GetPlatformInfo enumerates the opencl platforms and their CPU and GPU
// devices. The specs and speed of each device are queried as well.
func GetPlatformInfo() ([]PlatformInfo, error) {
	pids := make([]cl.PlatformID, maxPlatforms)
	var pidCount uint32
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)

	buf := make([]byte, infoBufSize)
	platforms := make([]PlatformInfo, 0, pidCount)
	for _, pid := range pids[:pidCount] {
		var (
			pl      PlatformInfo
			dataLen uint64
			bufPtr  = unsafe.Pointer(&buf[0])
			bufLen  = uint64(len(buf))
		)
		cl.GetPlatformInfo(pid, cl.PLATFORM_PROFILE, bufLen, bufPtr, &dataLen)
		pl.Profile = infoString(buf, dataLen)
		cl.GetPlatformInfo(pid, cl.PLATFORM_VERSION, bufLen, bufPtr, &dataLen)
		pl.Version = infoString(buf, dataLen)
		cl.GetPlatformInfo(pid, cl.PLATFORM_NAME, bufLen, bufPtr, &dataLen)
		pl.Name = infoString(buf, dataLen)
		cl.GetPlatformInfo(pid, cl.PLATFORM_VENDOR, bufLen, bufPtr, &dataLen)
		pl.Vendor = infoString(buf, dataLen)
		cl.GetPlatformInfo(pid, cl.PLATFORM_EXTENSIONS, bufLen, bufPtr, &dataLen)
		pl.Extensions = infoString(buf, dataLen)

		pl.Devices = append(enumerateDevices(pid, CpuDevice, buf), enumerateDevices(pid, GpuDevice, buf)...)

		for _, dev := range pl.Devices {
			if err := dev.detectSpeed(); err != nil {
				return nil, err
			}
		}
		platforms = append(platforms, pl)
	}

	return platforms, nil
}

func enumerateDevices(pid cl.PlatformID, devType DeviceType, buf []byte) []*Device {
	clType := cl.DEVICE_TYPE_CPU
	if devType == GpuDevice {
		clType = cl.DEVICE_TYPE_GPU
	}

	ids := make([]cl.DeviceId, maxDevices)
	var count uint32
	cl.GetDeviceIDs(pid, clType, uint32(len(ids)), &ids[0], &count)

	list := make([]*Device, 0, count)
	for _, id := range ids[:count] {
		var dataLen uint64
		cl.GetDeviceInfo(id, cl.DEVICE_NAME, uint64(len(buf)), unsafe.Pointer(&buf[0]), &dataLen)
		list = append(list, &Device{
			Name: strings.TrimSpace(infoString(buf, dataLen)),
			Id:   id,
			Type: devType,
		})
	}
	return list
}

// SelectDevices returns the devices across all platforms whose type is
// covered by typeMask and whose name contains matchName (if not empty).
func SelectDevices(typeMask DeviceType, matchName string) ([]*Device, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}

	var list []*Device
	for _, p := range platforms {
		for _, d := range p.Devices {
			if d.Type&typeMask != d.Type {
				continue
			}
			if matchName != "" && !strings.Contains(d.Name, matchName) {
				continue
			}
			list = append(list, d)
		}
	}
	return list, nil
}

// SelectDevice returns the index-th device (across all platforms) matching
// the type mask.
func SelectDevice(typeMask DeviceType, index int) (*Device, error) {
	list, err := SelectDevices(typeMask, "")
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: requested %s device %d; %d available", ErrNoSuchDevice, typeMask, index, len(list))
	}
	return list[index], nil
}
