// Пакет thumbnail — генерация миниатюр изображений.
// Поддерживаются PNG, JPEG и GIF (первый кадр). Результат кодируется
// в формате исходника; одинаковый вход даёт побайтно одинаковый выход.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// jpegQuality — качество JPEG-миниатюр.
const jpegQuality = 85

// ErrDecode — исходные данные не являются изображением поддерживаемого формата.
var ErrDecode = errors.New("не удалось декодировать изображение")

// ErrInvalidWidth — запрошена неположительная ширина.
var ErrInvalidWidth = errors.New("некорректная ширина миниатюры")

// Generate масштабирует изображение src до ширины width с сохранением
// пропорций. Изображения уже, чем width, не увеличиваются.
func Generate(src []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	dst := Scale(img, width)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	case "gif":
		err = gif.Encode(&buf, dst, &gif.Options{NumColors: 256})
	default:
		return nil, fmt.Errorf("%w: формат %s", ErrDecode, format)
	}
	if err != nil {
		return nil, fmt.Errorf("кодирование миниатюры %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Scale возвращает копию img шириной width (не больше исходной).
func Scale(img image.Image, width int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}

	if width > w {
		width = w
	}
	height := (h*width + w/2) / w
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
