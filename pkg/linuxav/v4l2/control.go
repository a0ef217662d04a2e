//go:build linux

package v4l2

import "unsafe"

// QueryControl describes control id.
func (d *Device) QueryControl(id uint32) (ControlInfo, error) {
	q := v4l2Queryctrl{id: id}
	if err := ioctl(d.fd, vidiocQueryctrl, unsafe.Pointer(&q)); err != nil {
		return ControlInfo{}, err
	}
	return ControlInfo{
		ID:      q.id,
		Type:    q.typ,
		Name:    cstr(q.name[:]),
		Minimum: q.minimum,
		Maximum: q.maximum,
		Step:    q.step,
		Default: q.defaultValue,
		Flags:   q.flags,
	}, nil
}

// QueryMenu returns the label of one menu entry.
func (d *Device) QueryMenu(id, index uint32) (string, error) {
	m := v4l2Querymenu{id: id, index: index}
	if err := ioctl(d.fd, vidiocQuerymenu, unsafe.Pointer(&m)); err != nil {
		return "", err
	}
	return cstr(m.name[:]), nil
}

// GetControl reads the current value of a control.
func (d *Device) GetControl(id uint32) (int32, error) {
	c := v4l2Control{id: id}
	if err := ioctl(d.fd, vidiocGCtrl, unsafe.Pointer(&c)); err != nil {
		return 0, err
	}
	return c.value, nil
}

// SetControl writes a control value.
func (d *Device) SetControl(id uint32, value int32) error {
	c := v4l2Control{id: id, value: value}
	return ioctl(d.fd, vidiocSCtrl, unsafe.Pointer(&c))
}
