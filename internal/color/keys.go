package color

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a key or lighting zone independently of any device.
type Key uint16

const (
	KeyNone Key = iota
	KeyEscape
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	KeyPrintScreen
	KeyScrollLock
	KeyPause
	KeyTilde
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	Key0
	KeyMinus
	KeyEquals
	KeyBackspace
	KeyInsert
	KeyHome
	KeyPageUp
	KeyTab
	KeyQ
	KeyW
	KeyE
	KeyR
	KeyT
	KeyY
	KeyU
	KeyI
	KeyO
	KeyP
	KeyOpenBracket
	KeyCloseBracket
	KeyBackslash
	KeyDelete
	KeyEnd
	KeyPageDown
	KeyCapsLock
	KeyA
	KeyS
	KeyD
	KeyF
	KeyG
	KeyH
	KeyJ
	KeyK
	KeyL
	KeySemicolon
	KeyApostrophe
	KeyEnter
	KeyLeftShift
	KeyZ
	KeyX
	KeyC
	KeyV
	KeyB
	KeyN
	KeyM
	KeyComma
	KeyPeriod
	KeyForwardSlash
	KeyRightShift
	KeyLeftControl
	KeyLeftWindows
	KeyLeftAlt
	KeySpace
	KeyRightAlt
	KeyFn
	KeyApplicationSelect
	KeyRightControl
	KeyArrowUp
	KeyArrowLeft
	KeyArrowDown
	KeyArrowRight
	KeyLogo
	KeyPeripheral
	KeyPeripheralLogo
	KeyPeripheralScrollWheel
	KeyPeripheralFrontLight
	KeyMousepadLight1
	KeyMousepadLight2
	KeyMousepadLight3
	KeyMousepadLight4
	KeyMousepadLight5
	KeyHeadsetLeft
	KeyHeadsetRight
	keyCount
)

var keyNames = [keyCount]string{
	KeyNone:                  "NONE",
	KeyEscape:                "ESC",
	KeyF1:                    "F1",
	KeyF2:                    "F2",
	KeyF3:                    "F3",
	KeyF4:                    "F4",
	KeyF5:                    "F5",
	KeyF6:                    "F6",
	KeyF7:                    "F7",
	KeyF8:                    "F8",
	KeyF9:                    "F9",
	KeyF10:                   "F10",
	KeyF11:                   "F11",
	KeyF12:                   "F12",
	KeyPrintScreen:           "PRINT_SCREEN",
	KeyScrollLock:            "SCROLL_LOCK",
	KeyPause:                 "PAUSE_BREAK",
	KeyTilde:                 "TILDE",
	Key1:                     "ONE",
	Key2:                     "TWO",
	Key3:                     "THREE",
	Key4:                     "FOUR",
	Key5:                     "FIVE",
	Key6:                     "SIX",
	Key7:                     "SEVEN",
	Key8:                     "EIGHT",
	Key9:                     "NINE",
	Key0:                     "ZERO",
	KeyMinus:                 "MINUS",
	KeyEquals:                "EQUALS",
	KeyBackspace:             "BACKSPACE",
	KeyInsert:                "INSERT",
	KeyHome:                  "HOME",
	KeyPageUp:                "PAGE_UP",
	KeyTab:                   "TAB",
	KeyQ:                     "Q",
	KeyW:                     "W",
	KeyE:                     "E",
	KeyR:                     "R",
	KeyT:                     "T",
	KeyY:                     "Y",
	KeyU:                     "U",
	KeyI:                     "I",
	KeyO:                     "O",
	KeyP:                     "P",
	KeyOpenBracket:           "OPEN_BRACKET",
	KeyCloseBracket:          "CLOSE_BRACKET",
	KeyBackslash:             "BACKSLASH",
	KeyDelete:                "DELETE",
	KeyEnd:                   "END",
	KeyPageDown:              "PAGE_DOWN",
	KeyCapsLock:              "CAPS_LOCK",
	KeyA:                     "A",
	KeyS:                     "S",
	KeyD:                     "D",
	KeyF:                     "F",
	KeyG:                     "G",
	KeyH:                     "H",
	KeyJ:                     "J",
	KeyK:                     "K",
	KeyL:                     "L",
	KeySemicolon:             "SEMICOLON",
	KeyApostrophe:            "APOSTROPHE",
	KeyEnter:                 "ENTER",
	KeyLeftShift:             "LEFT_SHIFT",
	KeyZ:                     "Z",
	KeyX:                     "X",
	KeyC:                     "C",
	KeyV:                     "V",
	KeyB:                     "B",
	KeyN:                     "N",
	KeyM:                     "M",
	KeyComma:                 "COMMA",
	KeyPeriod:                "PERIOD",
	KeyForwardSlash:          "FORWARD_SLASH",
	KeyRightShift:            "RIGHT_SHIFT",
	KeyLeftControl:           "LEFT_CONTROL",
	KeyLeftWindows:           "LEFT_WINDOWS",
	KeyLeftAlt:               "LEFT_ALT",
	KeySpace:                 "SPACE",
	KeyRightAlt:              "RIGHT_ALT",
	KeyFn:                    "FN_KEY",
	KeyApplicationSelect:     "APPLICATION_SELECT",
	KeyRightControl:          "RIGHT_CONTROL",
	KeyArrowUp:               "ARROW_UP",
	KeyArrowLeft:             "ARROW_LEFT",
	KeyArrowDown:             "ARROW_DOWN",
	KeyArrowRight:            "ARROW_RIGHT",
	KeyLogo:                  "LOGO",
	KeyPeripheral:            "PERIPHERAL",
	KeyPeripheralLogo:        "PERIPHERAL_LOGO",
	KeyPeripheralScrollWheel: "PERIPHERAL_SCROLL_WHEEL",
	KeyPeripheralFrontLight:  "PERIPHERAL_FRONT_LIGHT",
	KeyMousepadLight1:        "MOUSEPADLIGHT1",
	KeyMousepadLight2:        "MOUSEPADLIGHT2",
	KeyMousepadLight3:        "MOUSEPADLIGHT3",
	KeyMousepadLight4:        "MOUSEPADLIGHT4",
	KeyMousepadLight5:        "MOUSEPADLIGHT5",
	KeyHeadsetLeft:           "HEADSET_LEFT",
	KeyHeadsetRight:          "HEADSET_RIGHT",
}

var keysByName = func() map[string]Key {
	m := make(map[string]Key, len(keyNames))
	for k, name := range keyNames {
		m[name] = Key(k)
	}
	return m
}()

// String returns the stable wire name of the key.
func (k Key) String() string {
	if int(k) < len(keyNames) {
		return keyNames[k]
	}
	return fmt.Sprintf("KEY_%d", uint16(k))
}

// Valid reports whether k is a known key.
func (k Key) Valid() bool {
	return k < keyCount
}

// ParseKey resolves a key by its wire name, case-insensitively.
func ParseKey(name string) (Key, error) {
	if k, ok := keysByName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return KeyNone, fmt.Errorf("unknown key %q", name)
}

// ParseKeyList parses a comma separated list of key names.
func ParseKeyList(list string) ([]Key, error) {
	var keys []Key
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// AllKeys returns every known key except KeyNone, in enum order.
func AllKeys() []Key {
	keys := make([]Key, 0, keyCount-1)
	for k := KeyNone + 1; k < keyCount; k++ {
		keys = append(keys, k)
	}
	return keys
}

// MarshalText implements encoding.TextMarshaler so keys work as JSON/YAML map keys.
func (k Key) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid key %d", uint16(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KeyColorMap is one frame: the color of every lit key.
type KeyColorMap map[Key]Color

// Clone returns a private copy of the frame.
func (m KeyColorMap) Clone() KeyColorMap {
	if m == nil {
		return nil
	}
	out := make(KeyColorMap, len(m))
	for k, c := range m {
		out[k] = c
	}
	return out
}

// Keys returns the keys present in the frame in enum order.
func (m KeyColorMap) Keys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Remap returns a copy of the frame with keys translated through mapping.
// Keys without an entry keep their identity. Mapping a key to KeyNone drops
// it. A remapped key overrides an unmapped key with the same target, and
// when several keys map to one target the last in enum order wins.
func (m KeyColorMap) Remap(mapping map[Key]Key) KeyColorMap {
	if len(mapping) == 0 {
		return m.Clone()
	}
	out := make(KeyColorMap, len(m))
	for k, c := range m {
		if _, ok := mapping[k]; !ok {
			out[k] = c
		}
	}
	for _, k := range m.Keys() {
		target, ok := mapping[k]
		if !ok || target == KeyNone {
			continue
		}
		out[target] = m[k]
	}
	return out
}

// Fill returns a frame that sets every known key to c.
func Fill(c Color) KeyColorMap {
	out := make(KeyColorMap, keyCount-1)
	for k := KeyNone + 1; k < keyCount; k++ {
		out[k] = c
	}
	return out
}
