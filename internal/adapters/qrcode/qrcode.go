// Package qrcode рисует QR для привязки: в терминале и как PNG data URI для /qr.
package qrcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"net/http"

	"github.com/mdp/qrterminal"
	"rsc.io/qr"
)

var ErrEmptyPayload = errors.New("qr payload is empty")

// PrintTerminal печатает QR полублоками, как его сканирует телефон с экрана консоли
func PrintTerminal(w io.Writer, payload string) {
	if payload == "" {
		return
	}
	fmt.Fprintln(w, "Scan this QR code with your phone:")
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, w)
}

// PNG кодирует payload в PNG, scale — размер модуля в пикселях
func PNG(payload string, scale int) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	code, err := qr.Encode(payload, qr.L)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	if scale > 0 {
		code.Scale = scale
	}
	return code.PNG(), nil
}

// DataURI возвращает QR как "data:image/png;base64,..." для <img src>
func DataURI(payload string, scale int) (string, error) {
	data, err := PNG(payload, scale)
	if err != nil {
		return "", err
	}
	return BuildDataURI(data), nil
}

// BuildDataURI собирает data URI по RFC 2397, MIME определяется по содержимому
func BuildDataURI(data []byte) string {
	mimeType := http.DetectContentType(data[:min(512, len(data))])
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		mimeType = "image/" + format
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
