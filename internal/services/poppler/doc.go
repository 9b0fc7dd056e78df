// Package poppler wraps the Poppler utilities pdftoppm and pdftotext for
// rendering PDF pages to images and extracting plain text.
package poppler
