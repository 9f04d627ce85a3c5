package store

// GroupRooms builds one Room per name holding the devices reporting under
// that name, in the order of names. Names without a device are skipped so
// every Room has at least one Device.
func GroupRooms(names []string, devices []Device) []Room {
	byName := make(map[string][]Device, len(names))
	for _, d := range devices {
		byName[d.Name] = append(byName[d.Name], d)
	}

	rooms := make([]Room, 0, len(names))
	for _, name := range names {
		ds := byName[name]
		if len(ds) == 0 {
			continue
		}
		rooms = append(rooms, Room{Name: name, Devices: ds})
	}
	return rooms
}
