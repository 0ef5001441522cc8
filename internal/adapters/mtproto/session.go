package mtproto

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

const authKeyLen = 256

// ErrUnsupportedSessionFormat возвращается, когда формат сессии не распознан.
var ErrUnsupportedSessionFormat = errors.New("неизвестный формат MTProto-сессии")

// ensureGotdSession приводит файл сессии к формату gotd. Поддерживаются
// строковые сессии Telethon и его JSON-выгрузки: авторизация из старого
// дампера переносится без повторного логина.
func ensureGotdSession(path string, log zerolog.Logger) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("чтение файла сессии: %w", err)
	}

	converted, changed, err := NormalizeSession(raw)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := os.WriteFile(path, converted, 0o600); err != nil {
		return fmt.Errorf("запись сконвертированной сессии: %w", err)
	}
	log.Info().Str("path", path).Msg("сессия Telethon сконвертирована в формат gotd")
	return nil
}

// NormalizeSession конвертирует сессию из известных форматов (строковая
// сессия Telethon, JSON-выгрузка Telethon) в JSON, понятный gotd.
// Возвращает блоб, признак выполненной конвертации и ошибку,
// если формат не распознан.
func NormalizeSession(raw []byte) ([]byte, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, errors.New("файл сессии пуст")
	}

	// Уже формат gotd.
	var gotd struct {
		Version int `json:"Version"`
	}
	if err := json.Unmarshal(trimmed, &gotd); err == nil && gotd.Version != 0 {
		return append([]byte(nil), trimmed...), false, nil
	}

	if converted, err := fromTelethonRows(trimmed); err == nil {
		return converted, true, nil
	}
	if converted, err := fromTelethonString(trimmed); err == nil {
		return converted, true, nil
	}
	return nil, false, ErrUnsupportedSessionFormat
}

// fromTelethonRows разбирает JSON-выгрузку таблицы sessions из Telethon.
func fromTelethonRows(raw []byte) ([]byte, error) {
	type row struct {
		DCID          int    `json:"dc_id"`
		ServerAddress string `json:"server_address"`
		Port          int    `json:"port"`
		AuthKey       string `json:"auth_key"`
	}
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.AuthKey == "" || r.ServerAddress == "" || r.Port == 0 {
			continue
		}
		return encodeSession(r.DCID, r.ServerAddress, r.Port, r.AuthKey)
	}
	return nil, errors.New("в выгрузке Telethon нет пригодных строк")
}

// fromTelethonString разбирает строковую сессию Telethon.
func fromTelethonString(raw []byte) ([]byte, error) {
	candidate := strings.TrimSpace(string(raw))
	candidate = strings.Trim(candidate, "\"'\n\r\t")
	if candidate == "" {
		return nil, errors.New("строковая сессия пуста")
	}

	data, err := session.TelethonSession(candidate)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if data.Addr != "" && len(data.Config.DCOptions) == 0 {
		host, portStr, err := net.SplitHostPort(data.Addr)
		if err == nil {
			if port, convErr := strconv.Atoi(portStr); convErr == nil {
				data.Config.DCOptions = []tg.DCOption{{
					ID:        data.DC,
					IPAddress: host,
					Port:      port,
				}}
			}
		}
	}
	return marshalSession(*data)
}

func encodeSession(dcID int, host string, port int, authKeyHex string) ([]byte, error) {
	authKeyHex = strings.Trim(strings.TrimSpace(authKeyHex), "'\"")
	if authKeyHex == "" {
		return nil, errors.New("пустой auth_key в сессии Telethon")
	}

	rawKey, err := hex.DecodeString(authKeyHex)
	if err != nil {
		return nil, fmt.Errorf("декодирование auth_key: %w", err)
	}
	if len(rawKey) != authKeyLen {
		return nil, fmt.Errorf("неожиданная длина auth_key: %d байт", len(rawKey))
	}

	// Идентификатор ключа в MTProto: младшие 8 байт SHA1 от ключа.
	digest := sha1.Sum(rawKey)

	data := session.Data{
		Config: session.Config{
			ThisDC:    dcID,
			DCOptions: []tg.DCOption{{ID: dcID, IPAddress: host, Port: port}},
		},
		DC:        dcID,
		Addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		AuthKey:   rawKey,
		AuthKeyID: append([]byte(nil), digest[12:]...),
	}
	return marshalSession(data)
}

func marshalSession(data session.Data) ([]byte, error) {
	payload := struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data}
	return json.Marshal(payload)
}
