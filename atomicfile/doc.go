/*
Package atomicfile writes files so that readers see either the old content
or the complete new content, never a partial write.

Data goes to a temporary file in the destination directory. Close syncs it,
renames it over the destination and syncs the directory. If any step fails,
or the write is aborted, the temporary file is removed and the destination
is left untouched.

	func save(path string, d []byte) error {
		f, err := atomicfile.New(path, 0644)
		if err != nil {
			return err
		}
		// Abort() after Close() is a no-op
		defer f.Abort()

		if _, err = f.Write(d); err != nil {
			return err
		}
		return f.Close()
	}

For the common case use WriteFile.
*/
package atomicfile
