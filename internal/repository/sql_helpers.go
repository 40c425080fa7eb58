package repository

type rowScanner interface {
	Scan(dest ...any) error
}
