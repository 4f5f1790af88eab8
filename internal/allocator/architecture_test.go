package allocator

import (
	"testing"

	"idcore/testutil"
)

func TestAllocatorStaysPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.StorageImportForbidden, "allocation is pure")
}
