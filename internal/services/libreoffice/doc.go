// Package libreoffice wraps headless LibreOffice for document and
// presentation conversions.
package libreoffice
