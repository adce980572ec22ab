package store

// DateToInt packs (year, month, day) into the YYYYMMDD integer form used by
// stream records.
func DateToInt(year, month, day int) uint32 {
	return uint32(year*10000 + month*100 + day)
}

// DateFromInt unpacks a YYYYMMDD integer date.
func DateFromInt(date uint32) (year, month, day int) {
	return int(date / 10000), int(date % 10000 / 100), int(date % 100)
}
