//go:build odbc

package main

// The legacy backend reaches Access files through unixODBC or the Windows
// ODBC manager. Build with -tags odbc and set LEGACY_DRIVER=odbc.
import _ "github.com/alexbrainman/odbc"
